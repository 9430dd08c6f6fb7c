package lead

import (
	"github.com/applygate/applygate/internal/lead/repository"
	"github.com/applygate/applygate/internal/lead/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lead.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
