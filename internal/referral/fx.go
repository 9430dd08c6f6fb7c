package referral

import (
	gatingdomain "github.com/applygate/applygate/internal/gating/domain"
	"github.com/applygate/applygate/internal/referral/repository"
	"github.com/applygate/applygate/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		fx.Annotate(
			service.NewHook,
			fx.As(new(gatingdomain.PostCommitHook)),
			fx.ResultTags(`group:"gating_hooks"`),
		),
	),
)
