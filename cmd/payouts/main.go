package main

import (
	"context"
	"log"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"fundplane/pkg/config"
	"fundplane/pkg/db"
	"fundplane/pkg/logger"
	"fundplane/pkg/redis"
	"fundplane/pkg/sequence"
	"fundplane/pkg/task"
	"fundplane/services/account"
	"fundplane/services/fixedfund"
	"fundplane/services/ledger"
	"fundplane/services/welfare"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		task.Server,
		fx.Provide(
			provideSnowflakeNode,
			ledger.NewService,
			account.NewService,
			fixedfund.NewService,
		),
		welfare.TaskModule,
		fx.Invoke(runScheduler),
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

// runScheduler enqueues the hourly payout sweep.
func runScheduler(lc fx.Lifecycle, cfg *config.Config) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		&asynq.SchedulerOpts{},
	)

	if _, err := scheduler.Register("@every 1h", welfare.NewPayoutRunTask(), asynq.Queue("low")); err != nil {
		zap.L().Error("failed to register payout sweep", zap.Error(err))
		os.Exit(1)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := scheduler.Run(); err != nil {
					zap.L().Error("scheduler stopped", zap.Error(err))
					os.Exit(1)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Shutdown()
			return nil
		},
	})
}
