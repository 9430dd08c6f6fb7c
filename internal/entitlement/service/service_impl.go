package service

import (
	"context"
	"strings"

	"github.com/applygate/applygate/internal/clock"
	"github.com/applygate/applygate/internal/config"
	"github.com/applygate/applygate/internal/entitlement/domain"
	"github.com/applygate/applygate/internal/events"
	obsmetrics "github.com/applygate/applygate/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Cfg        config.Config
	Outbox     *events.Outbox      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	sweepBatch int
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	sweepBatch := p.Cfg.Sweep.BatchSize
	if sweepBatch <= 0 {
		sweepBatch = 200
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		sweepBatch: sweepBatch,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Issue(ctx context.Context, req domain.IssueGrantRequest) (domain.Grant, error) {
	if req.HolderID == 0 {
		return domain.Grant{}, domain.ErrInvalidHolder
	}
	if req.PackageID == 0 {
		return domain.Grant{}, domain.ErrInvalidPackage
	}
	if req.CreditCount <= 0 {
		return domain.Grant{}, domain.ErrInvalidCreditCount
	}
	if req.ValidityDays <= 0 {
		return domain.Grant{}, domain.ErrInvalidValidity
	}
	sourceOrderID := strings.TrimSpace(req.SourceOrderID)
	if sourceOrderID == "" {
		return domain.Grant{}, domain.ErrInvalidSourceOrder
	}

	now := s.clock.Now()
	grant := domain.Grant{
		ID:            s.genID.Generate(),
		HolderID:      req.HolderID,
		PackageID:     req.PackageID,
		TotalCredits:  req.CreditCount,
		UsedCredits:   0,
		IssuedAt:      now,
		ExpiresAt:     now.AddDate(0, 0, req.ValidityDays),
		SourceOrderID: sourceOrderID,
		Status:        domain.GrantStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.InsertIdempotent(ctx, tx, &grant)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		inserted = true

		if s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				HolderID: grant.HolderID,
				Type:     events.EventGrantIssued,
				Payload: map[string]any{
					"grant_id":        grant.ID.String(),
					"package_id":      grant.PackageID.String(),
					"total_credits":   grant.TotalCredits,
					"source_order_id": grant.SourceOrderID,
				},
				DedupeKey: "grant_issued:" + grant.SourceOrderID,
			})
		}
		return nil
	})
	if err != nil {
		return domain.Grant{}, err
	}

	if !inserted {
		existing, err := s.repo.FindBySourceOrder(ctx, s.db, sourceOrderID)
		if err != nil {
			return domain.Grant{}, err
		}
		if existing == nil {
			return domain.Grant{}, domain.ErrGrantNotFound
		}
		s.log.Debug("grant issue deduplicated",
			zap.String("source_order_id", sourceOrderID),
			zap.String("grant_id", existing.ID.String()),
		)
		existing.Status = domain.DeriveStatus(*existing, s.clock.Now())
		return *existing, nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.GrantsIssued.Inc()
	}
	return grant, nil
}

func (s *Service) UsableGrant(ctx context.Context, holderID snowflake.ID) (domain.Grant, error) {
	if holderID == 0 {
		return domain.Grant{}, domain.ErrInvalidHolder
	}

	now := s.clock.Now()
	if err := s.repo.MarkExpiredForHolder(ctx, s.db, holderID, now); err != nil {
		return domain.Grant{}, err
	}

	grant, err := s.repo.FindUsable(ctx, s.db, holderID, now)
	if err != nil {
		return domain.Grant{}, err
	}
	if grant == nil {
		return domain.Grant{}, domain.ErrNoUsableCredits
	}
	grant.Status = domain.DeriveStatus(*grant, now)
	return *grant, nil
}

func (s *Service) Debit(ctx context.Context, grantID snowflake.ID, expectedUsedCredits int) (domain.Grant, error) {
	if grantID == 0 {
		return domain.Grant{}, domain.ErrGrantNotFound
	}
	if expectedUsedCredits < 0 {
		return domain.Grant{}, domain.ErrStaleGrant
	}

	now := s.clock.Now()

	// CAS and the confirming read share one transaction so a failed read
	// rolls the increment back instead of stranding a spent credit.
	var (
		ok    bool
		grant *domain.Grant
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ok, err = s.repo.CompareAndSetDebit(ctx, tx, grantID, expectedUsedCredits, now)
		if err != nil {
			return err
		}
		grant, err = s.repo.FindByID(ctx, tx, grantID)
		return err
	})
	if err != nil {
		return domain.Grant{}, err
	}
	if grant == nil {
		return domain.Grant{}, domain.ErrGrantNotFound
	}
	if !ok {
		return domain.Grant{}, domain.ErrStaleGrant
	}

	grant.Status = domain.DeriveStatus(*grant, now)
	return *grant, nil
}

func (s *Service) Refund(ctx context.Context, grantID snowflake.ID) error {
	if grantID == 0 {
		return domain.ErrGrantNotFound
	}

	now := s.clock.Now()
	refunded, err := s.repo.Refund(ctx, s.db, grantID, now)
	if err != nil {
		return err
	}
	if !refunded {
		grant, err := s.repo.FindByID(ctx, s.db, grantID)
		if err != nil {
			return err
		}
		if grant == nil {
			return domain.ErrGrantNotFound
		}
		s.log.Warn("refund found no consumed credit to return",
			zap.String("grant_id", grantID.String()),
		)
		return nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.CreditsRefunds.Inc()
	}
	return nil
}

func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	count, err := s.repo.MarkExpired(ctx, s.db, now, s.sweepBatch)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("expired grants swept", zap.Int64("count", count))
		if s.obsMetrics != nil {
			s.obsMetrics.SweptGrants.Add(float64(count))
		}
	}
	return count, nil
}

func (s *Service) ListByHolder(ctx context.Context, holderID snowflake.ID) ([]domain.Grant, error) {
	if holderID == 0 {
		return nil, domain.ErrInvalidHolder
	}

	items, err := s.repo.FindByHolder(ctx, s.db, holderID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	grants := make([]domain.Grant, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		grant := *item
		grant.Status = domain.DeriveStatus(grant, now)
		grants = append(grants, grant)
	}
	return grants, nil
}
