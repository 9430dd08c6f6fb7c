package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateEdgeRequest struct {
	ReferrerID snowflake.ID
	ReferredID snowflake.ID
}

type Service interface {
	// CreateEdge records a pending referral. A referred holder can only ever
	// belong to one edge; repeats return the existing edge.
	CreateEdge(ctx context.Context, req CreateEdgeRequest) (ReferralEdge, error)

	// OnFirstConsumption completes the referred holder's pending edge and
	// rewards both parties once. Holders without a pending edge, and edges
	// already completed, are no-ops.
	OnFirstConsumption(ctx context.Context, referredID snowflake.ID) error

	// Balance returns the holder's accumulated bonus points.
	Balance(ctx context.Context, holderID snowflake.ID) (int64, error)

	// EdgeByReferred returns the referred holder's edge, if any.
	EdgeByReferred(ctx context.Context, referredID snowflake.ID) (*ReferralEdge, error)
}

var (
	ErrInvalidReferrer = errors.New("invalid_referrer")
	ErrInvalidReferred = errors.New("invalid_referred")
	ErrSelfReferral    = errors.New("self_referral")
	ErrAlreadyReferred = errors.New("already_referred")
)
