package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pkg *Package) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]*Package, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
