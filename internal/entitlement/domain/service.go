package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// IssueGrantRequest is produced from a verified payment plus the package it
// paid for. SourceOrderID is the idempotency key.
type IssueGrantRequest struct {
	HolderID      snowflake.ID
	PackageID     snowflake.ID
	CreditCount   int
	ValidityDays  int
	SourceOrderID string
}

type Service interface {
	// Issue creates exactly one grant per source order id. Re-issuing for an
	// order that already has a grant returns the existing grant.
	Issue(ctx context.Context, req IssueGrantRequest) (Grant, error)

	// UsableGrant selects the holder's active grant expiring soonest, or
	// ErrNoUsableCredits when none qualifies. Selection is evaluated fresh on
	// every call.
	UsableGrant(ctx context.Context, holderID snowflake.ID) (Grant, error)

	// Debit increments used credits by one iff the grant is still active and
	// used credits still equal expected. Lost races return ErrStaleGrant.
	Debit(ctx context.Context, grantID snowflake.ID, expectedUsedCredits int) (Grant, error)

	// Refund reverses one debit after a failed domain effect.
	Refund(ctx context.Context, grantID snowflake.ID) error

	// SweepExpired flips active grants past expiry to expired. Pure status
	// cache refresh; used credits are untouched.
	SweepExpired(ctx context.Context) (int64, error)

	// ListByHolder returns all grants for a holder with statuses derived
	// against current time, newest first.
	ListByHolder(ctx context.Context, holderID snowflake.ID) ([]Grant, error)
}

var (
	ErrInvalidHolder      = errors.New("invalid_holder")
	ErrInvalidPackage     = errors.New("invalid_package")
	ErrInvalidCreditCount = errors.New("invalid_credit_count")
	ErrInvalidValidity    = errors.New("invalid_validity")
	ErrInvalidSourceOrder = errors.New("invalid_source_order")
	ErrGrantNotFound      = errors.New("grant_not_found")
	ErrNoUsableCredits    = errors.New("no_usable_credits")
	ErrStaleGrant         = errors.New("stale_grant")
)
