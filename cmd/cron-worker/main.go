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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/eventreg-backend/internal/cron"
	"github.com/angelmondragon/eventreg-backend/internal/inventory"
	"github.com/angelmondragon/eventreg-backend/internal/orders"
	gatewaywebhook "github.com/angelmondragon/eventreg-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/eventreg-backend/pkg/config"
	"github.com/angelmondragon/eventreg-backend/pkg/db"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
	"github.com/angelmondragon/eventreg-backend/pkg/migrate"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
	"github.com/angelmondragon/eventreg-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := metrics.NewCronJobMetrics(promRegistry)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Reconciliation.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, metricsCollector)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Reconciliation.Interval,
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
	logg.Info(ctx, "starting cron worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, promRegistry, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry wires the sweeps in run order: expiry and abandoned-checkout cancellation run
// before reminders, so an order that just lapsed is never nudged to pay.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, collector *metrics.CronJobMetrics) (*cron.Registry, error) {
	offsets, err := cfg.Reconciliation.ReminderOffsets()
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	store, err := orders.NewStore(ordersRepo, dbClient, outbox.NewService(outboxRepo, logg), inventory.NewLedger(), logg)
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewExpiryJob(cron.ExpiryJobParams{
		Logger:        logg,
		Orders:        ordersRepo,
		Transitioner:  store,
		Metrics:       collector,
		PaymentWindow: cfg.Reconciliation.PaymentWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("expiry job: %w", err)
	}
	// a checkout still waiting on the gateway is at most Gateway.Timeout old
	abandoned, err := cron.NewAbandonedCheckoutJob(cron.AbandonedCheckoutJobParams{
		Logger:       logg,
		Orders:       ordersRepo,
		Transitioner: store,
		Metrics:      collector,
		Grace:        cfg.Gateway.Timeout + cfg.Reconciliation.SessionGrace,
	})
	if err != nil {
		return nil, fmt.Errorf("abandoned checkout job: %w", err)
	}
	reminders, err := cron.NewUnpaidNoticeJob(cron.UnpaidNoticeJobParams{
		Logger:    logg,
		Orders:    ordersRepo,
		Reminders: store,
		Metrics:   collector,
		Offsets:   offsets,
		Lookback:  cfg.Reconciliation.Lookback,
	})
	if err != nil {
		return nil, fmt.Errorf("unpaid notice job: %w", err)
	}
	backlog, err := cron.NewWebhookBacklogJob(cron.WebhookBacklogJobParams{
		Logger:         logg,
		Events:         gatewaywebhook.NewRepository(dbClient.DB()),
		Metrics:        collector,
		AlertThreshold: cfg.Webhook.RetryAlertThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook backlog job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return cron.NewRegistry(expiry, abandoned, reminders, backlog, retention)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "reconciliation:" + env
}
