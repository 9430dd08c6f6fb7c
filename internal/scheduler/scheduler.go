package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/applygate/applygate/internal/clock"
	entitlementdomain "github.com/applygate/applygate/internal/entitlement/domain"
	"github.com/applygate/applygate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler dependencies are incomplete")

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	EntitlementSvc entitlementdomain.Service
	Limiter        *ratelimit.VerifyLimiter `optional:"true"`
	Config         Config                   `optional:"true"`
}

// Scheduler drives the background expiry sweep. The sweep is a status cache
// refresh; correctness never depends on it because reads derive status lazily.
type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	clock          clock.Clock
	entitlementSvc entitlementdomain.Service
	limiter        *ratelimit.VerifyLimiter
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.EntitlementSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler"),
		cfg:            p.Config.withDefaults(),
		clock:          p.Clock,
		entitlementSvc: p.EntitlementSvc,
		limiter:        p.Limiter,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("sweep scheduler started", zap.Duration("interval", s.cfg.RunInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass. When a distributed lock is available
// the pass is skipped unless this instance wins it.
func (s *Scheduler) RunOnce(ctx context.Context) {
	token, ok, err := s.limiter.TryLockSweep(ctx)
	if err != nil {
		s.log.Warn("sweep lock acquisition failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := s.limiter.ReleaseSweep(ctx, token); err != nil {
			s.log.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	start := s.clock.Now()
	count, err := s.entitlementSvc.SweepExpired(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.log.Info("expiry sweep finished",
			zap.Int64("expired", count),
			zap.Duration("took", s.clock.Now().Sub(start)),
		)
	}
}
