package product

import (
	"github.com/copiflow/copiflow/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(service.New),
)
