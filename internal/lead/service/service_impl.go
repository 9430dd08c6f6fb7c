package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/applygate/applygate/internal/clock"
	gatingdomain "github.com/applygate/applygate/internal/gating/domain"
	"github.com/applygate/applygate/internal/lead/domain"
	"github.com/applygate/applygate/pkg/db"
	"github.com/bwmarrin/snowflake"
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
	Gating gatingdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	gating gatingdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("lead.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		gating: p.Gating,
	}
}

func (s *Service) Assign(ctx context.Context, req domain.AssignRequest) (domain.LeadAssignment, error) {
	if req.HolderID == 0 {
		return domain.LeadAssignment{}, domain.ErrInvalidHolder
	}
	if req.LeadID == 0 {
		return domain.LeadAssignment{}, domain.ErrInvalidLead
	}

	assignment := domain.LeadAssignment{
		ID:       s.genID.Generate(),
		LeadID:   req.LeadID,
		HolderID: req.HolderID,
	}

	// The action key carries only the lead: whoever claims it first wins,
	// and every later holder replays into the same marker.
	res, err := s.gating.Attempt(ctx, gatingdomain.AttemptRequest{
		HolderID:  req.HolderID,
		ActionKey: fmt.Sprintf("lead_assign:%s", req.LeadID),
		Kind:      "lead_assignment",
		Checks: []gatingdomain.Check{
			s.leadUnclaimed(req.LeadID),
		},
		Effect: func(ctx context.Context, tx *gorm.DB) error {
			assignment.CreatedAt = s.clock.Now()
			return s.repo.Insert(ctx, tx, &assignment)
		},
	})
	if err != nil {
		if errors.Is(err, gatingdomain.ErrAlreadyActioned) {
			return domain.LeadAssignment{}, domain.ErrLeadAlreadyAssigned
		}
		if db.IsDuplicateKeyErr(err) {
			return domain.LeadAssignment{}, domain.ErrLeadAlreadyAssigned
		}
		return domain.LeadAssignment{}, err
	}

	assignment.GrantID = res.GrantID
	s.log.Info("lead assigned",
		zap.String("lead_id", req.LeadID.String()),
		zap.String("holder_id", req.HolderID.String()),
	)
	return assignment, nil
}

func (s *Service) ListByHolder(ctx context.Context, holderID snowflake.ID) ([]domain.LeadAssignment, error) {
	if holderID == 0 {
		return nil, domain.ErrInvalidHolder
	}

	items, err := s.repo.FindByHolder(ctx, s.db, holderID)
	if err != nil {
		return nil, err
	}
	assignments := make([]domain.LeadAssignment, 0, len(items))
	for _, item := range items {
		if item != nil {
			assignments = append(assignments, *item)
		}
	}
	return assignments, nil
}

func (s *Service) leadUnclaimed(leadID snowflake.ID) gatingdomain.Check {
	return func(ctx context.Context) error {
		existing, err := s.repo.FindByLead(ctx, s.db, leadID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrLeadAlreadyAssigned
		}
		return nil
	}
}
