package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"fundplane/pkg/config"
	"fundplane/pkg/db"
	"fundplane/pkg/health"
	"fundplane/pkg/logger"
	"fundplane/pkg/redis"
	"fundplane/pkg/sequence"
	"fundplane/pkg/server"
	"fundplane/pkg/task"
	"fundplane/services/account"
	"fundplane/services/activityfund"
	"fundplane/services/dashboard"
	"fundplane/services/fixedfund"
	"fundplane/services/ledger"
	"fundplane/services/welfare"
	"fundplane/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		health.Module,
		fx.Provide(provideSnowflakeNode),
		server.ProvideRouter,
		account.Module,
		ledger.Module,
		activityfund.Module,
		withdrawal.Module,
		fixedfund.Module,
		welfare.Module,
		dashboard.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
