package events

import (
	"github.com/copiflow/copiflow/internal/events/service"
	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(service.New),
)
