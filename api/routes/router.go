package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	subscriptionsvc "github.com/angelmondragon/storefront-backend/internal/subscriptions"
	asaaswebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Revoke(ctx context.Context, accessID string, expiresAt time.Time) error
}

// cacheStore is the Redis surface the HTTP layer needs.
type cacheStore interface {
	redis.IdempotencyStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache cacheStore,
	gatherer prometheus.Gatherer,
	sessionManager sessionManager,
	checkoutService checkoutsvc.Service,
	cartService cart.Service,
	ordersSvc orders.Service,
	subscriptionsService subscriptionsvc.Service,
	webhookService webhookcontrollers.AsaasWebhookService,
	webhookGuard *asaaswebhook.IdempotencyGuard,
	webhookMetrics *metrics.WebhookMetrics,
	dlqStore controllers.OutboxDLQStore,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	var checker session.AccessSessionChecker
	if cfg.FeatureFlags.SessionCheck && sessionManager != nil {
		checker = sessionManager
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.HTTP.RateLimitWindow, cfg.HTTP.CheckoutLimit)
	retryPolicy := middleware.NewRateLimitPolicy("payment-retry", cfg.HTTP.RateLimitWindow, cfg.HTTP.RetryLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": cache,
		}))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/asaas", webhookcontrollers.AsaasWebhook(
			webhookService,
			webhookGuard,
			cfg.Asaas,
			cfg.HTTP.WebhookMaxBytes,
			webhookMetrics,
			logg,
		))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, checker, logg))
			r.Use(middleware.Idempotency(cache, logg))

			r.Post("/auth/logout", controllers.AuthLogout(sessionManager, logg))

			r.With(middleware.RateLimit(checkoutPolicy, cache, logg)).
				Post("/checkout", controllers.Checkout(checkoutService, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrdersList(ordersSvc, logg))
				r.Get("/{orderId}", controllers.OrderDetail(ordersSvc, logg))
				r.Post("/{orderId}/cancel", controllers.OrderCancel(ordersSvc, logg))
				r.With(middleware.RateLimit(retryPolicy, cache, logg)).
					Post("/{orderId}/retry", controllers.OrderRetry(checkoutService, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(cartService, logg))
				r.Put("/", controllers.CartReplace(cartService, logg))
				r.Post("/merge", controllers.CartMerge(cartService, logg))
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", controllers.SubscriptionCreate(subscriptionsService, logg))
				r.Get("/", controllers.SubscriptionList(subscriptionsService, logg))
				r.Get("/{subscriptionId}", controllers.SubscriptionFetch(subscriptionsService, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, checker, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(cache, logg))
		r.Post("/orders/{orderId}/status", controllers.AdminSetOrderStatus(ordersSvc, logg))
		r.Get("/outbox/dlq", controllers.AdminOutboxDLQList(dlqStore, logg))
		r.Post("/outbox/dlq/{eventId}/replay", controllers.AdminOutboxDLQReplay(dlqStore, logg))
	})

	return r
}
