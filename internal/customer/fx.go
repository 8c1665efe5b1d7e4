package customer

import (
	"github.com/copiflow/copiflow/internal/customer/repository"
	"github.com/copiflow/copiflow/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
