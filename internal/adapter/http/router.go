package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/invitequeue/internal/adapter/http/handler"
	"github.com/iho/invitequeue/internal/adapter/http/middleware"
	"github.com/iho/invitequeue/internal/infrastructure/metrics"
	"github.com/iho/invitequeue/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Logger zerolog.Logger
	// Metrics enables the request metrics middleware; MetricsHandler, when
	// set, is served on /metrics.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	HealthHandler   *handler.HealthHandler
	AccountHandler  *handler.AccountHandler
	PurchaseHandler *handler.PurchaseHandler
	PaymentHandler  *handler.PaymentHandler
	AdminHandler    *handler.AdminHandler

	// Authenticate guards every route that needs a caller. It is
	// middleware.Authenticate in production.
	Authenticate     func(http.Handler) http.Handler
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	authenticate := cfg.Authenticate
	if authenticate == nil {
		authenticate = middleware.HeaderIdentity
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/invite-price", cfg.AccountHandler.InvitePrice)

		// Gateway webhook; the payment id is the only dedup key it needs.
		r.Post("/payments/notifications", cfg.PaymentHandler.Notify)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			if cfg.IdempotencyStore != nil {
				r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
			}

			r.Post("/purchases", cfg.PurchaseHandler.Create)
			r.Get("/purchases/{id}", cfg.PurchaseHandler.Get)

			r.Get("/me/balance", cfg.AccountHandler.Balance)
			r.Get("/me/invites", cfg.AccountHandler.Invites)
			r.Get("/me/transactions", cfg.AccountHandler.Transactions)
			r.Put("/me/payout-account", cfg.AccountHandler.SetPayoutAccount)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Post("/users", cfg.AdminHandler.RegisterUser)
				r.Get("/settings", cfg.AdminHandler.ListSettings)
				r.Put("/settings/{key}", cfg.AdminHandler.UpdateSetting)
				r.Get("/settlements/pending", cfg.AdminHandler.PendingSettlements)
				r.Post("/settlements/reconcile", cfg.AdminHandler.Reconcile)
				r.Get("/queue/head", cfg.AdminHandler.QueueHead)
			})
		})
	})

	return r
}
