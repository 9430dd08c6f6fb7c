package repository

import (
	"context"
	"errors"

	"github.com/applygate/applygate/internal/lead/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByLead(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*domain.LeadAssignment, error) {
	var assignment domain.LeadAssignment
	err := db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, assignment *domain.LeadAssignment) error {
	return tx.WithContext(ctx).Create(assignment).Error
}

func (r *repo) FindByHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID) ([]*domain.LeadAssignment, error) {
	var assignments []*domain.LeadAssignment
	err := db.WithContext(ctx).
		Where("holder_id = ?", holderID).
		Order("created_at DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}
