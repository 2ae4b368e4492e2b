package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/astraops/paygate/internal/config"
	"github.com/astraops/paygate/internal/migration"
	"github.com/astraops/paygate/internal/observability"
	"github.com/astraops/paygate/internal/server"
	"github.com/astraops/paygate/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
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
