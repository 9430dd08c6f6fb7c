package repository

import (
	"context"

	"github.com/applygate/applygate/internal/application/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, holderID, jobID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("holder_id = ? AND job_id = ?", holderID, jobID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, app *domain.Application) error {
	return tx.WithContext(ctx).Create(app).Error
}

func (r *repo) FindByHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID) ([]*domain.Application, error) {
	var apps []*domain.Application
	err := db.WithContext(ctx).
		Where("holder_id = ?", holderID).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}
