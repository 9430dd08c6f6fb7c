package service

import (
	"context"

	gatingdomain "github.com/applygate/applygate/internal/gating/domain"
	"github.com/applygate/applygate/internal/referral/domain"
	"go.uber.org/zap"
)

// Hook bridges committed gated actions into the referral flow: the first
// credit a referred holder spends completes their edge.
type Hook struct {
	log       *zap.Logger
	referrals domain.Service
}

func NewHook(log *zap.Logger, referrals domain.Service) *Hook {
	return &Hook{
		log:       log.Named("referral.hook"),
		referrals: referrals,
	}
}

func (h *Hook) OnActionCommitted(ctx context.Context, res gatingdomain.Result) {
	if err := h.referrals.OnFirstConsumption(ctx, res.HolderID); err != nil {
		h.log.Error("referral completion after consumption",
			zap.String("holder_id", res.HolderID.String()),
			zap.Error(err),
		)
	}
}
