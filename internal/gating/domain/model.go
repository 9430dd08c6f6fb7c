package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// GatedAction records one committed credit-backed action. The unique action
// key is what makes replays of the same action free.
type GatedAction struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	HolderID  snowflake.ID `gorm:"index"`
	ActionKey string       `gorm:"uniqueIndex"`
	Kind      string
	GrantID   snowflake.ID
	CreatedAt time.Time
}

func (GatedAction) TableName() string {
	return "gated_actions"
}

// Check runs before any ledger mutation. A non-nil error vetoes the attempt
// without touching credits.
type Check func(ctx context.Context) error

// Effect is the domain write a spent credit pays for. It runs inside the
// same transaction as the action marker, so both land or neither does.
type Effect func(ctx context.Context, tx *gorm.DB) error

// Result describes a committed attempt.
type Result struct {
	ActionID  snowflake.ID
	ActionKey string
	Kind      string
	HolderID  snowflake.ID
	GrantID   snowflake.ID
	Remaining int
}

// PostCommitHook observes committed attempts. Hooks run outside the
// transaction and must not fail the attempt.
type PostCommitHook interface {
	OnActionCommitted(ctx context.Context, res Result)
}

type AttemptRequest struct {
	HolderID  snowflake.ID
	ActionKey string
	Kind      string
	Checks    []Check
	Effect    Effect
}

type Service interface {
	// Attempt runs checks, spends one credit, and commits the effect together
	// with a uniqueness marker for the action key. Replaying an already
	// committed action key returns ErrAlreadyActioned and spends nothing.
	Attempt(ctx context.Context, req AttemptRequest) (Result, error)
}

type Repository interface {
	InsertMarker(ctx context.Context, tx *gorm.DB, action *GatedAction) (bool, error)
	ActionExists(ctx context.Context, db *gorm.DB, actionKey string) (bool, error)
	FindByActionKey(ctx context.Context, db *gorm.DB, actionKey string) (*GatedAction, error)
}

var (
	ErrInvalidHolder    = errors.New("invalid_holder")
	ErrInvalidActionKey = errors.New("invalid_action_key")
	ErrMissingEffect    = errors.New("missing_effect")
	ErrAlreadyActioned  = errors.New("already_actioned")
)
