package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/applygate/applygate/internal/application/domain"
	"github.com/applygate/applygate/internal/clock"
	gatingdomain "github.com/applygate/applygate/internal/gating/domain"
	"github.com/applygate/applygate/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Gating    gatingdomain.Service
	Documents domain.DocumentChecker `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	gating    gatingdomain.Service
	documents domain.DocumentChecker
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("application.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		gating:    p.Gating,
		documents: p.Documents,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (domain.Application, error) {
	if req.HolderID == 0 {
		return domain.Application{}, domain.ErrInvalidHolder
	}
	if req.JobID == 0 {
		return domain.Application{}, domain.ErrInvalidJob
	}

	app := domain.Application{
		ID:       s.genID.Generate(),
		HolderID: req.HolderID,
		JobID:    req.JobID,
	}

	res, err := s.gating.Attempt(ctx, gatingdomain.AttemptRequest{
		HolderID:  req.HolderID,
		ActionKey: fmt.Sprintf("application:%s:%s", req.HolderID, req.JobID),
		Kind:      "application",
		Checks: []gatingdomain.Check{
			s.documentsComplete(req.HolderID),
			s.notAlreadyApplied(req.HolderID, req.JobID),
		},
		Effect: func(ctx context.Context, tx *gorm.DB) error {
			app.CreatedAt = s.clock.Now()
			return s.repo.Insert(ctx, tx, &app)
		},
	})
	if err != nil {
		if errors.Is(err, gatingdomain.ErrAlreadyActioned) {
			return domain.Application{}, domain.ErrAlreadyApplied
		}
		// A race past the precondition read lands on the unique
		// holder+job index instead.
		if db.IsDuplicateKeyErr(err) {
			return domain.Application{}, domain.ErrAlreadyApplied
		}
		return domain.Application{}, err
	}

	app.GrantID = res.GrantID
	s.log.Info("application submitted",
		zap.String("holder_id", req.HolderID.String()),
		zap.String("job_id", req.JobID.String()),
		zap.Int("credits_remaining", res.Remaining),
	)
	return app, nil
}

func (s *Service) ListByHolder(ctx context.Context, holderID snowflake.ID) ([]domain.Application, error) {
	if holderID == 0 {
		return nil, domain.ErrInvalidHolder
	}

	items, err := s.repo.FindByHolder(ctx, s.db, holderID)
	if err != nil {
		return nil, err
	}
	apps := make([]domain.Application, 0, len(items))
	for _, item := range items {
		if item != nil {
			apps = append(apps, *item)
		}
	}
	return apps, nil
}

func (s *Service) documentsComplete(holderID snowflake.ID) gatingdomain.Check {
	return func(ctx context.Context) error {
		if s.documents == nil {
			return nil
		}
		complete, err := s.documents.DocumentsComplete(ctx, holderID)
		if err != nil {
			return err
		}
		if !complete {
			return domain.ErrMissingDocuments
		}
		return nil
	}
}

func (s *Service) notAlreadyApplied(holderID, jobID snowflake.ID) gatingdomain.Check {
	return func(ctx context.Context) error {
		exists, err := s.repo.Exists(ctx, s.db, holderID, jobID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyApplied
		}
		return nil
	}
}
