package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/clock"
	"github.com/copiflow/copiflow/internal/config"
	"github.com/copiflow/copiflow/internal/migration"
	"github.com/copiflow/copiflow/internal/scheduler"
	"github.com/copiflow/copiflow/internal/server"
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
		server.Module,
		scheduler.Module,
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
