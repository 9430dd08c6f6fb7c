package gating

import (
	"github.com/applygate/applygate/internal/gating/repository"
	"github.com/applygate/applygate/internal/gating/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gating.engine",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
