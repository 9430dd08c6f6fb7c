package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// LeadAssignment records a lead claimed by a holder. A lead can only ever be
// assigned once, across all holders.
type LeadAssignment struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	LeadID    snowflake.ID `gorm:"uniqueIndex"`
	HolderID  snowflake.ID `gorm:"index"`
	GrantID   snowflake.ID
	CreatedAt time.Time
}

func (LeadAssignment) TableName() string {
	return "lead_assignments"
}

type AssignRequest struct {
	LeadID   snowflake.ID
	HolderID snowflake.ID
}

type Service interface {
	// Assign spends one of the holder's credits and claims the lead. Claiming
	// an already assigned lead returns ErrLeadAlreadyAssigned.
	Assign(ctx context.Context, req AssignRequest) (LeadAssignment, error)

	ListByHolder(ctx context.Context, holderID snowflake.ID) ([]LeadAssignment, error)
}

type Repository interface {
	FindByLead(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*LeadAssignment, error)
	Insert(ctx context.Context, tx *gorm.DB, assignment *LeadAssignment) error
	FindByHolder(ctx context.Context, db *gorm.DB, holderID snowflake.ID) ([]*LeadAssignment, error)
}

var (
	ErrInvalidHolder       = errors.New("invalid_holder")
	ErrInvalidLead         = errors.New("invalid_lead")
	ErrLeadAlreadyAssigned = errors.New("lead_already_assigned")
)
