package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Application is the committed record of one credit-backed job application.
type Application struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	HolderID  snowflake.ID `gorm:"index"`
	JobID     snowflake.ID
	GrantID   snowflake.ID
	CreatedAt time.Time
}

func (Application) TableName() string {
	return "applications"
}

type SubmitRequest struct {
	HolderID snowflake.ID
	JobID    snowflake.ID
}

type Service interface {
	// Submit spends one credit and records the application. Re-submitting the
	// same holder and job returns ErrAlreadyApplied without spending.
	Submit(ctx context.Context, req SubmitRequest) (Application, error)

	ListByHolder(ctx context.Context, holderID snowflake.ID) ([]Application, error)
}

// DocumentChecker answers whether the holder's profile documents are complete
// enough to apply. It lives outside this service, typically a profile store.
type DocumentChecker interface {
	DocumentsComplete(ctx context.Context, holderID snowflake.ID) (bool, error)
}

type Repository interface {
	Exists(ctx context.Context, db *gorm.DB, holderID, jobID snowflake.ID) (bool, error)
	Insert(ctx context.Context, tx *gorm.DB, app *Application) error
	FindByHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID) ([]*Application, error)
}

var (
	ErrInvalidHolder    = errors.New("invalid_holder")
	ErrInvalidJob       = errors.New("invalid_job")
	ErrAlreadyApplied   = errors.New("already_applied")
	ErrMissingDocuments = errors.New("missing_documents")
)
