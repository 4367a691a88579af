package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/eventreg-backend/api/routes"
	"github.com/angelmondragon/eventreg-backend/internal/catalog"
	"github.com/angelmondragon/eventreg-backend/internal/checkout"
	"github.com/angelmondragon/eventreg-backend/internal/inventory"
	"github.com/angelmondragon/eventreg-backend/internal/orders"
	gatewaywebhook "github.com/angelmondragon/eventreg-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/eventreg-backend/pkg/config"
	"github.com/angelmondragon/eventreg-backend/pkg/db"
	"github.com/angelmondragon/eventreg-backend/pkg/gateway"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/metrics"
	"github.com/angelmondragon/eventreg-backend/pkg/migrate"
	"github.com/angelmondragon/eventreg-backend/pkg/outbox"
	"github.com/angelmondragon/eventreg-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gatewayClient, err := gateway.NewClient(cfg.Gateway, &http.Client{Timeout: cfg.Gateway.Timeout})
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	orderStore, err := orders.NewStore(
		ordersRepo,
		dbClient,
		outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		inventory.NewLedger(),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create order store", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		dbClient,
		catalog.NewRepository(dbClient.DB()),
		ordersRepo,
		orderStore,
		gatewayClient,
		metrics.NewCheckoutMetrics(registry),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Secret:            cfg.Gateway.WebhookSecret,
		FailureThreshold:  cfg.Webhook.FailureThreshold,
		Events:            gatewaywebhook.NewRepository(dbClient.DB()),
		Orders:            ordersRepo,
		Store:             orderStore,
		TransactionRunner: dbClient,
		Metrics:           metrics.NewWebhookMetrics(registry),
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			checkoutService,
			ordersRepo,
			orderStore,
			outbox.NewDLQRepository(dbClient.DB()),
			webhookService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
	logg.Info(ctx, "api server stopped")
}
