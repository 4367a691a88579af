package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/eventreg-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/eventreg-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/eventreg-backend/api/controllers/webhooks"
	"github.com/angelmondragon/eventreg-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/eventreg-backend/internal/checkout"
	"github.com/angelmondragon/eventreg-backend/internal/orders"
	"github.com/angelmondragon/eventreg-backend/pkg/config"
	"github.com/angelmondragon/eventreg-backend/pkg/db"
	"github.com/angelmondragon/eventreg-backend/pkg/enums"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
	"github.com/angelmondragon/eventreg-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	checkoutService checkoutsvc.Service,
	ordersRepo orders.Repository,
	orderStore *orders.Store,
	deadLetters ordercontrollers.DeadLetterLister,
	webhookService webhookcontrollers.GatewayWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	// shared counters and replay records; both middlewares pass through when redis is absent
	var (
		limiter     redis.RateLimiter
		idempotency redis.IdempotencyStore
		readyDeps   = map[string]controllers.Pinger{"database": dbP}
	)
	if redisClient != nil {
		limiter = redisClient
		idempotency = redisClient
		readyDeps["redis"] = redisClient
	}

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.RateLimitPerIP,
		cfg.Checkout.RateLimitPerEmail,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(webhookService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.With(
			middleware.RateLimit(checkoutPolicy, limiter, logg),
			middleware.Idempotency(idempotency, cfg.Checkout.IdempotencyTTL, logg),
		).Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Get("/orders/{orderNumber}", ordercontrollers.Status(ordersRepo, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.OperatorRoleAdmin, enums.OperatorRoleSupport))
		r.Get("/orders/{orderNumber}", ordercontrollers.Status(ordersRepo, logg))
		r.Get("/orders/{orderNumber}/dead-letters", ordercontrollers.DeadLetters(ordersRepo, deadLetters, logg))
		r.With(
			middleware.RequireRole(logg, enums.OperatorRoleAdmin),
			middleware.Idempotency(idempotency, cfg.Checkout.IdempotencyTTL, logg),
		).Post("/orders/{orderNumber}/cancel", ordercontrollers.AdminCancel(ordersRepo, orderStore, logg))
	})

	return r
}
