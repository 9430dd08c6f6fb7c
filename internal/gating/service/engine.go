package service

import (
	"context"
	"errors"
	"strings"

	"github.com/applygate/applygate/internal/clock"
	entitlementdomain "github.com/applygate/applygate/internal/entitlement/domain"
	"github.com/applygate/applygate/internal/events"
	"github.com/applygate/applygate/internal/gating/domain"
	obsmetrics "github.com/applygate/applygate/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxDebitRetries bounds the usable-grant/debit loop under contention.
const maxDebitRetries = 3

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Entitlements entitlementdomain.Service
	Outbox       *events.Outbox          `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
	Hooks        []domain.PostCommitHook `group:"gating_hooks"`
}

type Engine struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	entitlements entitlementdomain.Service
	outbox       *events.Outbox
	obsMetrics   *obsmetrics.Metrics
	hooks        []domain.PostCommitHook
}

func New(p Params) domain.Service {
	return &Engine{
		db:           p.DB,
		log:          p.Log.Named("gating.engine"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		entitlements: p.Entitlements,
		outbox:       p.Outbox,
		obsMetrics:   p.ObsMetrics,
		hooks:        p.Hooks,
	}
}

func (e *Engine) Attempt(ctx context.Context, req domain.AttemptRequest) (domain.Result, error) {
	if req.HolderID == 0 {
		return domain.Result{}, domain.ErrInvalidHolder
	}
	actionKey := strings.TrimSpace(req.ActionKey)
	if actionKey == "" {
		return domain.Result{}, domain.ErrInvalidActionKey
	}
	if req.Effect == nil {
		return domain.Result{}, domain.ErrMissingEffect
	}
	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		kind = "action"
	}

	// Replay check before spending anything. The transactional marker below
	// still guards the race between two first attempts.
	done, err := e.repo.ActionExists(ctx, e.db, actionKey)
	if err != nil {
		return domain.Result{}, err
	}
	if done {
		e.count(kind, "replay")
		return domain.Result{}, domain.ErrAlreadyActioned
	}

	for _, check := range req.Checks {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			e.count(kind, "precondition_failed")
			return domain.Result{}, err
		}
	}

	grant, err := e.debitWithRetry(ctx, req.HolderID, kind)
	if err != nil {
		return domain.Result{}, err
	}

	action := domain.GatedAction{
		ID:        e.genID.Generate(),
		HolderID:  req.HolderID,
		ActionKey: actionKey,
		Kind:      kind,
		GrantID:   grant.ID,
		CreatedAt: e.clock.Now(),
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := e.repo.InsertMarker(ctx, tx, &action)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrAlreadyActioned
		}
		if err := req.Effect(ctx, tx); err != nil {
			return err
		}
		if e.outbox != nil {
			return e.outbox.PublishTx(ctx, tx, events.Event{
				HolderID: req.HolderID,
				Type:     events.EventCreditConsumed,
				Payload: map[string]any{
					"action_key": actionKey,
					"kind":       kind,
					"grant_id":   grant.ID.String(),
					"remaining":  grant.Remaining(),
				},
				DedupeKey: "credit_consumed:" + actionKey,
			})
		}
		return nil
	})
	if err != nil {
		// The debit already landed, so it has to be returned before the error
		// is surfaced. Detached from ctx: a caller that gave up mid-attempt
		// must not take the credit with it.
		refundCtx := context.WithoutCancel(ctx)
		if rerr := e.entitlements.Refund(refundCtx, grant.ID); rerr != nil {
			e.log.Error("refund after failed effect",
				zap.String("action_key", actionKey),
				zap.String("grant_id", grant.ID.String()),
				zap.Error(rerr),
			)
		}
		if errors.Is(err, domain.ErrAlreadyActioned) {
			e.count(kind, "replay")
		} else {
			e.count(kind, "effect_failed")
			e.log.Warn("gated effect failed",
				zap.String("action_key", actionKey),
				zap.Error(err),
			)
		}
		return domain.Result{}, err
	}

	res := domain.Result{
		ActionID:  action.ID,
		ActionKey: actionKey,
		Kind:      kind,
		HolderID:  req.HolderID,
		GrantID:   grant.ID,
		Remaining: grant.Remaining(),
	}

	e.count(kind, "committed")
	for _, hook := range e.hooks {
		if hook != nil {
			hook.OnActionCommitted(ctx, res)
		}
	}
	return res, nil
}

// debitWithRetry re-selects the usable grant on every lost compare-and-set
// race, up to maxDebitRetries selections.
func (e *Engine) debitWithRetry(ctx context.Context, holderID snowflake.ID, kind string) (entitlementdomain.Grant, error) {
	for attempt := 0; attempt < maxDebitRetries; attempt++ {
		candidate, err := e.entitlements.UsableGrant(ctx, holderID)
		if err != nil {
			if errors.Is(err, entitlementdomain.ErrNoUsableCredits) {
				e.count(kind, "no_credits")
			}
			return entitlementdomain.Grant{}, err
		}

		grant, err := e.entitlements.Debit(ctx, candidate.ID, candidate.UsedCredits)
		if err == nil {
			return grant, nil
		}
		if !errors.Is(err, entitlementdomain.ErrStaleGrant) {
			return entitlementdomain.Grant{}, err
		}

		if e.obsMetrics != nil {
			e.obsMetrics.DebitRetries.Inc()
		}
	}

	// Retries exhausted; the race is internal, the caller only learns there
	// was nothing left to spend.
	e.count(kind, "contended")
	e.log.Warn("debit retries exhausted",
		zap.String("holder_id", holderID.String()),
		zap.Int("retries", maxDebitRetries),
	)
	return entitlementdomain.Grant{}, entitlementdomain.ErrNoUsableCredits
}

func (e *Engine) count(kind, outcome string) {
	if e.obsMetrics != nil {
		e.obsMetrics.GatingAttempts.WithLabelValues(kind, outcome).Inc()
	}
}
