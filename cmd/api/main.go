// Package main is the entrypoint for the ErrMate API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/billing"
	"github.com/errmate/errmate/internal/cache"
	"github.com/errmate/errmate/internal/config"
	"github.com/errmate/errmate/internal/handler"
	"github.com/errmate/errmate/internal/llm"
	"github.com/errmate/errmate/internal/metrics"
	"github.com/errmate/errmate/internal/repository"
	"github.com/errmate/errmate/internal/server"
	"github.com/errmate/errmate/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid usage timezone", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		applied, err := repo.Migrate(ctx)
		if err != nil {
			logger.Error("failed to apply migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			repo.Close()
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.Int("count", len(applied)), slog.Any("versions", applied))
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   cfg.AuthJWTSecret,
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})
	if err != nil {
		logger.Error("failed to initialize session verifier", slog.String("error", err.Error()))
		_ = cacheClient.Close()
		repo.Close()
		os.Exit(1)
	}

	billingClient := billing.NewClient(billing.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		PriceID:       cfg.StripePriceID,
		UnitAmount:    cfg.ProPriceCents,
		Currency:      cfg.ProCurrency,
	}, "", logger)

	completer := llm.NewClient(llm.Config{
		BaseURL:     cfg.OpenRouterBaseURL,
		APIKey:      cfg.OpenRouterAPIKey,
		Model:       cfg.OpenRouterModel,
		AppURL:      cfg.AppURL,
		AppTitle:    "ErrMate",
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	}, logger)

	recorder := metrics.NewPrometheus()

	usageService := service.NewUsageService(repo, repo, billingClient, cacheClient, service.UsageConfig{
		FreeDailyLimit: cfg.FreeDailyLimit,
		AnonymousLimit: cfg.AnonymousLimit,
		Location:       loc,
		CancelAtTTL:    cfg.CancelAtCacheTTL,
	}, logger, recorder)
	explainService := service.NewExplainService(usageService, repo, completer, service.ExplainConfig{
		MaxErrorTextLength:   cfg.MaxErrorTextLength,
		MaxContextTextLength: cfg.MaxContextTextLength,
		StructuredOutput:     cfg.LLMStructuredOutput,
	}, logger, recorder)
	subscriptionService := service.NewSubscriptionService(repo, billingClient, usageService, cacheClient, cfg.WebhookEventTTL, logger, recorder)
	checkoutService := service.NewCheckoutService(repo, billingClient, cfg.AppURL, logger)
	queryService := service.NewQueryService(repo)

	r := newRouter(routes{
		root:     handler.New(),
		health:   handler.NewHealthHandler(repo, cacheClient),
		metrics:  handler.NewMetricsHandler(recorder.Handler()),
		explain:  handler.NewExplainHandler(explainService, logger),
		billing:  handler.NewBillingHandler(checkoutService, subscriptionService, usageService, logger),
		queries:  handler.NewQueryHandler(queryService, logger),
		webhook:  handler.NewWebhookHandler(billingClient, subscriptionService, logger),
		verifier: verifier,
		limiter:  cacheClient,
	}, cfg, logger)

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// LIFO: Redis closes before the pool.
	srv.OnShutdown("postgres", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("app_url", cfg.AppURL),
		slog.String("env", cfg.AppEnv),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
