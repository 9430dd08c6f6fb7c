package service

import (
	"context"
	"strings"

	"github.com/applygate/applygate/internal/clock"
	"github.com/applygate/applygate/internal/creditpackage/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("creditpackage.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePackageRequest) (domain.Package, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Package{}, domain.ErrInvalidName
	}
	if req.CreditCount <= 0 {
		return domain.Package{}, domain.ErrInvalidCreditCount
	}
	if req.PriceMinorUnits <= 0 {
		return domain.Package{}, domain.ErrInvalidPrice
	}
	if req.ValidityDays <= 0 {
		return domain.Package{}, domain.ErrInvalidValidityDays
	}

	now := s.clock.Now()
	pkg := domain.Package{
		ID:              s.genID.Generate(),
		Name:            name,
		CreditCount:     req.CreditCount,
		PriceMinorUnits: req.PriceMinorUnits,
		ValidityDays:    req.ValidityDays,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &pkg); err != nil {
		return domain.Package{}, err
	}

	return pkg, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPackageRequest) ([]domain.Package, error) {
	items, err := s.repo.List(ctx, s.db, req.ActiveOnly)
	if err != nil {
		return nil, err
	}

	packages := make([]domain.Package, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		packages = append(packages, *item)
	}
	return packages, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetPackageRequest) (domain.Package, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Package{}, domain.ErrInvalidID
	}

	pkg, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Package{}, err
	}
	if pkg == nil {
		return domain.Package{}, domain.ErrNotFound
	}
	return *pkg, nil
}

func (s *Service) Deactivate(ctx context.Context, req domain.DeactivatePackageRequest) error {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.ErrInvalidID
	}

	updated, err := s.repo.Deactivate(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !updated {
		pkg, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return err
		}
		if pkg == nil {
			return domain.ErrNotFound
		}
	}
	return nil
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
