package application

import (
	"github.com/applygate/applygate/internal/application/repository"
	"github.com/applygate/applygate/internal/application/service"
	"go.uber.org/fx"
)

var Module = fx.Module("application.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
