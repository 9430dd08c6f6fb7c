package repository

import (
	"context"
	"time"

	"github.com/applygate/applygate/internal/entitlement/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIdempotent(ctx context.Context, db *gorm.DB, grant *domain.Grant) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO entitlement_grants (
			id, holder_id, package_id, total_credits, used_credits,
			issued_at, expires_at, source_order_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_order_id) DO NOTHING`,
		grant.ID,
		grant.HolderID,
		grant.PackageID,
		grant.TotalCredits,
		grant.UsedCredits,
		grant.IssuedAt,
		grant.ExpiresAt,
		grant.SourceOrderID,
		string(grant.Status),
		grant.CreatedAt,
		grant.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Grant, error) {
	var grant domain.Grant
	err := db.WithContext(ctx).Raw(
		`SELECT id, holder_id, package_id, total_credits, used_credits,
		        issued_at, expires_at, source_order_id, status, created_at, updated_at
		 FROM entitlement_grants WHERE id = ?`,
		id,
	).Scan(&grant).Error
	if err != nil {
		return nil, err
	}
	if grant.ID == 0 {
		return nil, nil
	}
	return &grant, nil
}

func (r *repo) FindBySourceOrder(ctx context.Context, db *gorm.DB, sourceOrderID string) (*domain.Grant, error) {
	var grant domain.Grant
	err := db.WithContext(ctx).Raw(
		`SELECT id, holder_id, package_id, total_credits, used_credits,
		        issued_at, expires_at, source_order_id, status, created_at, updated_at
		 FROM entitlement_grants WHERE source_order_id = ?`,
		sourceOrderID,
	).Scan(&grant).Error
	if err != nil {
		return nil, err
	}
	if grant.ID == 0 {
		return nil, nil
	}
	return &grant, nil
}

func (r *repo) FindByHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID) ([]*domain.Grant, error) {
	var grants []*domain.Grant
	err := db.WithContext(ctx).
		Model(&domain.Grant{}).
		Where("holder_id = ?", holderID).
		Order("issued_at desc, id desc").
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *repo) FindUsable(ctx context.Context, db *gorm.DB, holderID snowflake.ID, now time.Time) (*domain.Grant, error) {
	var grant domain.Grant
	err := db.WithContext(ctx).Raw(
		`SELECT id, holder_id, package_id, total_credits, used_credits,
		        issued_at, expires_at, source_order_id, status, created_at, updated_at
		 FROM entitlement_grants
		 WHERE holder_id = ?
		   AND used_credits < total_credits
		   AND expires_at > ?
		 ORDER BY expires_at ASC, id ASC
		 LIMIT 1`,
		holderID,
		now,
	).Scan(&grant).Error
	if err != nil {
		return nil, err
	}
	if grant.ID == 0 {
		return nil, nil
	}
	return &grant, nil
}

// CompareAndSetDebit guards on used_credits still matching the caller's read
// and on the grant still being unexpired, so two racing debits on a grant's
// last credit can never both win.
func (r *repo) CompareAndSetDebit(ctx context.Context, db *gorm.DB, grantID snowflake.ID, expectedUsedCredits int, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlement_grants
		 SET used_credits = used_credits + 1,
		     status = CASE WHEN used_credits + 1 >= total_credits THEN 'exhausted' ELSE 'active' END,
		     updated_at = ?
		 WHERE id = ?
		   AND used_credits = ?
		   AND used_credits < total_credits
		   AND expires_at > ?`,
		now,
		grantID,
		expectedUsedCredits,
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Refund(ctx context.Context, db *gorm.DB, grantID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlement_grants
		 SET used_credits = used_credits - 1,
		     status = CASE WHEN expires_at > ? THEN 'active' ELSE 'expired' END,
		     updated_at = ?
		 WHERE id = ? AND used_credits > 0`,
		now,
		now,
		grantID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlement_grants
		 SET status = 'expired', updated_at = ?
		 WHERE id IN (
			SELECT id FROM entitlement_grants
			WHERE status = 'active' AND expires_at <= ?
			LIMIT ?
		 )`,
		now,
		now,
		limit,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) MarkExpiredForHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlement_grants
		 SET status = 'expired', updated_at = ?
		 WHERE holder_id = ? AND status = 'active' AND expires_at <= ?`,
		now,
		holderID,
		now,
	).Error
}
