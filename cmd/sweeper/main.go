package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/teamcart-backend/internal/bootstrap"
	"github.com/angelmondragon/teamcart-backend/internal/cron"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
	"github.com/angelmondragon/teamcart-backend/pkg/migrate"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweeper"

	logg = logger.New(logger.Options{
		ServiceName: "sweeper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	teamCart, err := bootstrap.NewTeamCart(cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(context.Background(), "failed to wire team cart engine", err)
		os.Exit(1)
	}

	sweeper, err := teamcart.NewSweeper(teamcart.SweeperParams{
		Engine:     teamCart.Engine,
		Store:      teamCart.Store,
		Logger:     logg,
		Metrics:    teamCart.Metrics,
		BatchSize:  cfg.TeamCart.SweepBatchSize,
		MaxBatches: cfg.TeamCart.SweepMaxBatches,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create team cart sweeper", err)
		os.Exit(1)
	}

	retention, err := cron.NewOutboxRetention(cron.OutboxRetentionParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Retention:   time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient.Cmdable(), redisClient.CronLockKey("sweeper"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	ledger, err := cron.NewRedisLedger(redisClient.Cmdable(), redisClient.CronRunsKey("sweeper"))
	if err != nil {
		logg.Error(context.Background(), "failed to create cron run ledger", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweeper, retention),
		Lock:     lock,
		Ledger:   ledger,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.TeamCart.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting team cart sweeper")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "team cart sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "team cart sweeper shutting down gracefully")
}
