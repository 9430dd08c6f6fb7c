package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EdgeStatus string

const (
	EdgeStatusPending   EdgeStatus = "pending"
	EdgeStatusCompleted EdgeStatus = "completed"
)

// ReferralEdge links a referrer to exactly one referred holder. The unique
// referred id keeps a holder from being claimed by two referrers.
type ReferralEdge struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	ReferrerID  snowflake.ID `gorm:"index"`
	ReferredID  snowflake.ID `gorm:"uniqueIndex"`
	Code        string
	Status      EdgeStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (ReferralEdge) TableName() string {
	return "referral_edges"
}

// RewardAccount accumulates referral bonus points per holder.
type RewardAccount struct {
	HolderID  snowflake.ID `gorm:"primaryKey"`
	Points    int64
	UpdatedAt time.Time
}

func (RewardAccount) TableName() string {
	return "reward_accounts"
}
