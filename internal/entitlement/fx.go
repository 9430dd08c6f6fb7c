package entitlement

import (
	"github.com/applygate/applygate/internal/entitlement/repository"
	"github.com/applygate/applygate/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
