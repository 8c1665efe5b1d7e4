// The scheduler app runs the billing-date sweep without the HTTP
// surface, for deployments that split the API from background work.
package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/clock"
	"github.com/copiflow/copiflow/internal/config"
	"github.com/copiflow/copiflow/internal/customer"
	"github.com/copiflow/copiflow/internal/device"
	"github.com/copiflow/copiflow/internal/events"
	"github.com/copiflow/copiflow/internal/locks"
	"github.com/copiflow/copiflow/internal/migration"
	"github.com/copiflow/copiflow/internal/product"
	"github.com/copiflow/copiflow/internal/reading"
	"github.com/copiflow/copiflow/internal/scheduler"
	"github.com/copiflow/copiflow/pkg/db"
	"github.com/copiflow/copiflow/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		events.Module,
		locks.Module,
		customer.Module,
		device.Module,
		product.Module,
		reading.Module,

		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
