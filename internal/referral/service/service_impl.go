package service

import (
	"context"

	"github.com/applygate/applygate/internal/clock"
	"github.com/applygate/applygate/internal/config"
	"github.com/applygate/applygate/internal/events"
	"github.com/applygate/applygate/internal/referral/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Cfg    config.Config
	Outbox *events.Outbox `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	bonusPoints int64
	outbox      *events.Outbox
}

func New(p Params) domain.Service {
	bonus := p.Cfg.Referral.BonusPoints
	if bonus <= 0 {
		bonus = 50
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("referral.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		bonusPoints: bonus,
		outbox:      p.Outbox,
	}
}

func (s *Service) CreateEdge(ctx context.Context, req domain.CreateEdgeRequest) (domain.ReferralEdge, error) {
	if req.ReferrerID == 0 {
		return domain.ReferralEdge{}, domain.ErrInvalidReferrer
	}
	if req.ReferredID == 0 {
		return domain.ReferralEdge{}, domain.ErrInvalidReferred
	}
	if req.ReferrerID == req.ReferredID {
		return domain.ReferralEdge{}, domain.ErrSelfReferral
	}

	edge := domain.ReferralEdge{
		ID:         s.genID.Generate(),
		ReferrerID: req.ReferrerID,
		ReferredID: req.ReferredID,
		Code:       uuid.NewString(),
		Status:     domain.EdgeStatusPending,
		CreatedAt:  s.clock.Now(),
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.InsertEdgeIdempotent(ctx, tx, &edge)
		if err != nil {
			return err
		}
		inserted = ok
		return nil
	})
	if err != nil {
		return domain.ReferralEdge{}, err
	}
	if inserted {
		return edge, nil
	}

	existing, err := s.repo.FindEdgeByReferred(ctx, s.db, req.ReferredID)
	if err != nil {
		return domain.ReferralEdge{}, err
	}
	if existing == nil {
		return domain.ReferralEdge{}, domain.ErrAlreadyReferred
	}
	if existing.ReferrerID != req.ReferrerID {
		return domain.ReferralEdge{}, domain.ErrAlreadyReferred
	}
	return *existing, nil
}

func (s *Service) OnFirstConsumption(ctx context.Context, referredID snowflake.ID) error {
	if referredID == 0 {
		return domain.ErrInvalidReferred
	}

	edge, err := s.repo.FindEdgeByReferred(ctx, s.db, referredID)
	if err != nil {
		return err
	}
	if edge == nil || edge.Status != domain.EdgeStatusPending {
		return nil
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The completed flip and both credits commit together, so a lost
		// race rewards nobody twice.
		won, err := s.repo.CompleteEdge(ctx, tx, referredID, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		if err := s.repo.AddPoints(ctx, tx, edge.ReferrerID, s.bonusPoints, now); err != nil {
			return err
		}
		if err := s.repo.AddPoints(ctx, tx, edge.ReferredID, s.bonusPoints, now); err != nil {
			return err
		}

		s.log.Info("referral completed",
			zap.String("referrer_id", edge.ReferrerID.String()),
			zap.String("referred_id", edge.ReferredID.String()),
		)

		if s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				HolderID: edge.ReferredID,
				Type:     events.EventReferralCompleted,
				Payload: map[string]any{
					"referrer_id":  edge.ReferrerID.String(),
					"referred_id":  edge.ReferredID.String(),
					"bonus_points": s.bonusPoints,
				},
				DedupeKey: "referral_completed:" + edge.ReferredID.String(),
			})
		}
		return nil
	})
}

func (s *Service) Balance(ctx context.Context, holderID snowflake.ID) (int64, error) {
	if holderID == 0 {
		return 0, domain.ErrInvalidReferred
	}
	return s.repo.GetPoints(ctx, s.db, holderID)
}

func (s *Service) EdgeByReferred(ctx context.Context, referredID snowflake.ID) (*domain.ReferralEdge, error) {
	if referredID == 0 {
		return nil, domain.ErrInvalidReferred
	}
	return s.repo.FindEdgeByReferred(ctx, s.db, referredID)
}
