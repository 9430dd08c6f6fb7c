package creditpackage

import (
	"github.com/applygate/applygate/internal/creditpackage/repository"
	"github.com/applygate/applygate/internal/creditpackage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("creditpackage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
