package repository

import (
	"context"
	"errors"

	"github.com/applygate/applygate/internal/gating/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertMarker(ctx context.Context, tx *gorm.DB, action *domain.GatedAction) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO gated_actions (id, holder_id, action_key, kind, grant_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (action_key) DO NOTHING`,
		action.ID,
		action.HolderID,
		action.ActionKey,
		action.Kind,
		action.GrantID,
		action.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ActionExists(ctx context.Context, db *gorm.DB, actionKey string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.GatedAction{}).
		Where("action_key = ?", actionKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByActionKey(ctx context.Context, db *gorm.DB, actionKey string) (*domain.GatedAction, error) {
	var action domain.GatedAction
	err := db.WithContext(ctx).
		Where("action_key = ?", actionKey).
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}
