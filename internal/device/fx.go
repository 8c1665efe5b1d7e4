package device

import (
	"github.com/copiflow/copiflow/internal/device/repository"
	"github.com/copiflow/copiflow/internal/device/service"
	"go.uber.org/fx"
)

var Module = fx.Module("device.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
