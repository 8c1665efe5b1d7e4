package reading

import (
	"github.com/copiflow/copiflow/internal/reading/repository"
	"github.com/copiflow/copiflow/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
