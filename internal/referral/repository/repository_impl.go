package repository

import (
	"context"
	"errors"
	"time"

	"github.com/applygate/applygate/internal/referral/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEdgeIdempotent(ctx context.Context, tx *gorm.DB, edge *domain.ReferralEdge) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO referral_edges (id, referrer_id, referred_id, code, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (referred_id) DO NOTHING`,
		edge.ID,
		edge.ReferrerID,
		edge.ReferredID,
		edge.Code,
		edge.Status,
		edge.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEdgeByReferred(ctx context.Context, db *gorm.DB, referredID snowflake.ID) (*domain.ReferralEdge, error) {
	var edge domain.ReferralEdge
	err := db.WithContext(ctx).
		Where("referred_id = ?", referredID).
		First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func (r *repo) CompleteEdge(ctx context.Context, tx *gorm.DB, referredID snowflake.ID, at time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE referral_edges
		 SET status = ?, completed_at = ?
		 WHERE referred_id = ? AND status = ?`,
		domain.EdgeStatusCompleted,
		at,
		referredID,
		domain.EdgeStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AddPoints(ctx context.Context, tx *gorm.DB, holderID snowflake.ID, delta int64, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO reward_accounts (holder_id, points, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (holder_id) DO UPDATE SET points = reward_accounts.points + ?, updated_at = ?`,
		holderID,
		delta,
		at,
		delta,
		at,
	).Error
}

func (r *repo) GetPoints(ctx context.Context, db *gorm.DB, holderID snowflake.ID) (int64, error) {
	var account domain.RewardAccount
	err := db.WithContext(ctx).
		Where("holder_id = ?", holderID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Points, nil
}
