package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEdgeIdempotent reports whether the edge was inserted. A conflict
	// on the referred id leaves the stored edge untouched.
	InsertEdgeIdempotent(ctx context.Context, tx *gorm.DB, edge *ReferralEdge) (bool, error)

	FindEdgeByReferred(ctx context.Context, db *gorm.DB, referredID snowflake.ID) (*ReferralEdge, error)

	// CompleteEdge flips the referred holder's edge from pending to completed
	// and reports whether this call won the flip.
	CompleteEdge(ctx context.Context, tx *gorm.DB, referredID snowflake.ID, at time.Time) (bool, error)

	// AddPoints upserts the holder's reward account by delta.
	AddPoints(ctx context.Context, tx *gorm.DB, holderID snowflake.ID, delta int64, at time.Time) error

	GetPoints(ctx context.Context, db *gorm.DB, holderID snowflake.ID) (int64, error)
}
