package domain

import (
	"context"
	"errors"
)

type CreatePackageRequest struct {
	Name            string
	CreditCount     int
	PriceMinorUnits int64
	ValidityDays    int
}

type ListPackageRequest struct {
	ActiveOnly bool
}

type GetPackageRequest struct {
	ID string
}

type DeactivatePackageRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreatePackageRequest) (Package, error)
	List(context.Context, ListPackageRequest) ([]Package, error)
	GetByID(context.Context, GetPackageRequest) (Package, error)
	Deactivate(context.Context, DeactivatePackageRequest) error
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidCreditCount  = errors.New("invalid_credit_count")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidValidityDays = errors.New("invalid_validity_days")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrPackageInactive     = errors.New("package_inactive")
)
