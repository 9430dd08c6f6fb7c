package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// GrantStatus is a cache of DeriveStatus over the durable fields. The
// persisted value is refreshed lazily on reads and by the sweep; readers must
// always trust DeriveStatus, never the stored column alone.
type GrantStatus string

const (
	GrantStatusActive    GrantStatus = "active"
	GrantStatusExpired   GrantStatus = "expired"
	GrantStatusExhausted GrantStatus = "exhausted"
)

// Grant is a discrete, time-bounded allotment of credits issued for one
// payment. SourceOrderID is unique so double delivery of the same payment
// confirmation can never create a second grant. Grants are never deleted.
type Grant struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	HolderID      snowflake.ID `gorm:"not null;index" json:"holder_id"`
	PackageID     snowflake.ID `gorm:"not null" json:"package_id"`
	TotalCredits  int          `gorm:"not null" json:"total_credits"`
	UsedCredits   int          `gorm:"not null;default:0" json:"used_credits"`
	IssuedAt      time.Time    `gorm:"not null" json:"issued_at"`
	ExpiresAt     time.Time    `gorm:"not null" json:"expires_at"`
	SourceOrderID string       `gorm:"not null;uniqueIndex:ux_entitlement_grants_source_order" json:"source_order_id"`
	Status        GrantStatus  `gorm:"type:text;not null" json:"status"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Grant) TableName() string { return "entitlement_grants" }

// Remaining reports unconsumed credits.
func (g Grant) Remaining() int {
	remaining := g.TotalCredits - g.UsedCredits
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DeriveStatus recomputes the grant status against now. Time is evaluated
// before the credit count, so a grant that is both past expiry and fully
// consumed reports expired.
func DeriveStatus(g Grant, now time.Time) GrantStatus {
	if !now.Before(g.ExpiresAt) {
		return GrantStatusExpired
	}
	if g.UsedCredits >= g.TotalCredits {
		return GrantStatusExhausted
	}
	return GrantStatusActive
}
