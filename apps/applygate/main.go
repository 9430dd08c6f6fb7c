package main

import (
	"github.com/applygate/applygate/internal/clock"
	"github.com/applygate/applygate/internal/config"
	"github.com/applygate/applygate/internal/logger"
	"github.com/applygate/applygate/internal/migration"
	"github.com/applygate/applygate/internal/server"
	"github.com/applygate/applygate/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
