package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Package is an immutable catalog entry. Price changes create a new
// definition; existing grants keep referencing the one they were sold under.
type Package struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"not null" json:"name"`
	CreditCount     int          `gorm:"not null" json:"credit_count"`
	PriceMinorUnits int64        `gorm:"not null" json:"price_minor_units"`
	ValidityDays    int          `gorm:"not null" json:"validity_days"`
	Active          bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Package) TableName() string { return "credit_packages" }
