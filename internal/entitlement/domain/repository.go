package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIdempotent inserts the grant unless one already exists for its
	// source order id. Reports whether a row was written.
	InsertIdempotent(ctx context.Context, db *gorm.DB, grant *Grant) (bool, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Grant, error)
	FindBySourceOrder(ctx context.Context, db *gorm.DB, sourceOrderID string) (*Grant, error)
	FindByHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID) ([]*Grant, error)

	// FindUsable returns the holder's unexpired, unexhausted grant with the
	// earliest expiry.
	FindUsable(ctx context.Context, db *gorm.DB, holderID snowflake.ID, now time.Time) (*Grant, error)

	// CompareAndSetDebit is the sole mutation path for used credits going up.
	CompareAndSetDebit(ctx context.Context, db *gorm.DB, grantID snowflake.ID, expectedUsedCredits int, now time.Time) (bool, error)

	// Refund reverses one debit. Reports whether a credit was returned.
	Refund(ctx context.Context, db *gorm.DB, grantID snowflake.ID, now time.Time) (bool, error)

	// MarkExpired flips active grants past expiry, at most limit rows.
	MarkExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)

	// MarkExpiredForHolder is the lazy, per-holder variant run before reads.
	MarkExpiredForHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID, now time.Time) error
}
