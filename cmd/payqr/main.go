package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payqr/internal/cache"
	"github.com/smallbiznis/payqr/internal/clock"
	"github.com/smallbiznis/payqr/internal/config"
	"github.com/smallbiznis/payqr/internal/observability/logger"
	"github.com/smallbiznis/payqr/internal/observability/metrics"
	"github.com/smallbiznis/payqr/internal/order"
	"github.com/smallbiznis/payqr/internal/passbook"
	"github.com/smallbiznis/payqr/internal/server"
	"github.com/smallbiznis/payqr/internal/verification"
	"github.com/smallbiznis/payqr/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,

		// Functional domains
		order.Module,
		passbook.Module,
		verification.Module,
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
