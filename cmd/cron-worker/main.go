package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tableside-backend/internal/cron"
	"github.com/angelmondragon/tableside-backend/internal/notifications"
	"github.com/angelmondragon/tableside-backend/internal/restaurants"
	"github.com/angelmondragon/tableside-backend/internal/waitercalls"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/migrate"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/angelmondragon/tableside-backend/pkg/redis"
)

const (
	serviceKind   = "cron-worker"
	lockKeyFormat = "cron-worker:%s"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
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

	// Purges never publish, but the services require a hub.
	hub := realtime.NewMemoryHub(1)
	defer hub.Close()

	restaurantService, err := restaurants.NewService(restaurants.NewRepository(dbClient.DB()), cfg.Payments.DefaultCurrency)
	exitOnErr(logg, "failed to create restaurants service", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), hub)
	exitOnErr(logg, "failed to create notifications service", err)

	waiterCallService, err := waitercalls.NewService(waitercalls.Deps{
		Repo:        waitercalls.NewRepository(dbClient.DB()),
		Restaurants: restaurantService,
		Hub:         hub,
		Logger:      logg,
	})
	exitOnErr(logg, "failed to create waiter calls service", err)

	notificationJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "notification-retention",
		Logger:    logg,
		Purge:     notificationService.Purge,
		Retention: cfg.Cron.NotificationRetention,
	})
	exitOnErr(logg, "failed to create notification retention job", err)

	waiterCallJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "waiter-call-retention",
		Logger:    logg,
		Purge:     waiterCallService.PurgeCompleted,
		Retention: cfg.Cron.WaiterCallRetention,
	})
	exitOnErr(logg, "failed to create waiter call retention job", err)

	registry, err := cron.NewRegistry(notificationJob, waiterCallJob)
	exitOnErr(logg, "failed to build cron registry", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), cfg.Cron.LockTTL)
	exitOnErr(logg, "failed to create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	exitOnErr(logg, "failed to create cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func exitOnErr(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
