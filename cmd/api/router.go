package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/errmate/errmate/internal/config"
	"github.com/errmate/errmate/internal/handler"
	"github.com/errmate/errmate/internal/middleware"
)

// routes collects what the router mounts.
type routes struct {
	root    *handler.Handler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	explain *handler.ExplainHandler
	billing *handler.BillingHandler
	queries *handler.QueryHandler
	webhook *handler.WebhookHandler

	verifier middleware.Verifier
	limiter  middleware.RateLimiter
}

// newRouter configures the chi router with all routes and middleware.
func newRouter(rt routes, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	r.Get("/", rt.root.Hello)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	r.Get("/metrics", rt.metrics.Metrics)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:        logger,
		Limiter:       rt.limiter,
		UserEnabled:   cfg.RateLimitAPIEnabled,
		UserPerMinute: cfg.RateLimitAPIPerMinute,
		UserBurst:     cfg.RateLimitAPIBurst,
		IPEnabled:     cfg.RateLimitExplainEnabled,
		IPRPS:         cfg.RateLimitExplainRPS,
		IPBurst:       cfg.RateLimitExplainBurst,
	}

	r.Route("/api", func(r chi.Router) {
		// Stripe posts here without a session; the handler bounds its own body.
		r.Post("/webhook", rt.webhook.Receive)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))
			r.Use(middleware.Session(middleware.SessionConfig{
				Logger:     logger,
				Verifier:   rt.verifier,
				CookieName: cfg.AuthCookieName,
			}))
			r.Use(middleware.RateLimitUser(rateLimitCfg))

			r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/explain-error", rt.explain.Explain)
			r.Get("/usage", rt.billing.Usage)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession)
				r.Post("/create-checkout", rt.billing.CreateCheckout)
				r.Post("/cancel-subscription", rt.billing.CancelSubscription)
				r.Get("/sync-subscription", rt.billing.SyncSubscription)
				r.Get("/queries", rt.queries.List)
			})
		})
	})

	r.NotFound(rt.root.NotFound)
	r.MethodNotAllowed(rt.root.MethodNotAllowed)

	return r
}
