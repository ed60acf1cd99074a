package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/billing"
	"github.com/errmate/errmate/internal/cache"
	"github.com/errmate/errmate/internal/config"
	"github.com/errmate/errmate/internal/handler"
	"github.com/errmate/errmate/internal/metrics"
	"github.com/errmate/errmate/internal/model"
	"github.com/errmate/errmate/internal/service"
	"github.com/errmate/errmate/internal/testutil"
	"github.com/errmate/errmate/internal/testutil/fake"
)

const testJWTSecret = "router-test-secret"

type routerEnv struct {
	handler http.Handler
	store   *fake.Store
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	logger := testutil.DiscardLogger()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cacheClient := cache.NewFromClient(client)

	verifier, err := auth.NewVerifier(auth.VerifierConfig{Secret: testJWTSecret})
	require.NoError(t, err)

	cfg := &config.Config{
		AppEnv:                "test",
		AppURL:                "https://errmate.test",
		AuthCookieName:        "errmate_session",
		MaxRequestBodySize:    1 << 20,
		RateLimitAPIEnabled:   true,
		RateLimitAPIPerMinute: 600,
		RateLimitAPIBurst:     100,
	}

	store := fake.NewStore()
	provider := fake.NewBilling()
	recorder := metrics.NewPrometheus()
	usage := service.NewUsageService(store, store, provider, cacheClient, service.UsageConfig{
		FreeDailyLimit: 3,
		AnonymousLimit: 2,
		Location:       time.UTC,
		CancelAtTTL:    time.Minute,
	}, logger, recorder)
	explainSvc := service.NewExplainService(usage, store, &fake.Completer{Content: "## Cause\nNil pointer."}, service.ExplainConfig{}, logger, recorder)
	subs := service.NewSubscriptionService(store, provider, usage, cacheClient, time.Hour, logger, recorder)
	parser := billing.NewClient(billing.Config{WebhookSecret: "whsec_test"}, "", logger)

	h := newRouter(routes{
		root:     handler.New(),
		health:   handler.NewHealthHandler(nil, cacheClient),
		metrics:  handler.NewMetricsHandler(recorder.Handler()),
		explain:  handler.NewExplainHandler(explainSvc, logger),
		billing:  handler.NewBillingHandler(service.NewCheckoutService(store, provider, cfg.AppURL, logger), subs, usage, logger),
		queries:  handler.NewQueryHandler(service.NewQueryService(store), logger),
		webhook:  handler.NewWebhookHandler(parser, subs, logger),
		verifier: verifier,
		limiter:  cacheClient,
	}, cfg, logger)

	return &routerEnv{handler: h, store: store}
}

func sessionToken(t *testing.T, userID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (e *routerEnv) do(method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Routes(t *testing.T) {
	env := newRouterEnv(t)
	token := sessionToken(t, "u1", "u1@example.com")

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		token    string
		wantCode int
		wantBody string
	}{
		{"service_info", http.MethodGet, "/", "", "", http.StatusOK, `"ErrMate API"`},
		{"liveness", http.MethodGet, "/healthz", "", "", http.StatusOK, `"ok"`},
		{"readiness", http.MethodGet, "/readyz", "", "", http.StatusOK, `"redis":"ok"`},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK, "errmate_usage_denied_total"},
		{"anonymous_usage", http.MethodGet, "/api/usage", "", "", http.StatusOK, `"isAnonymous":true`},
		{"signed_in_usage", http.MethodGet, "/api/usage", "", token, http.StatusOK, `"limit":3`},
		{"queries_need_session", http.MethodGet, "/api/queries", "", "", http.StatusUnauthorized, `"Unauthorized"`},
		{"queries", http.MethodGet, "/api/queries", "", token, http.StatusOK, `[]`},
		{"checkout_needs_session", http.MethodPost, "/api/create-checkout", "", "", http.StatusUnauthorized, `"UNAUTHORIZED"`},
		{"cancel_without_subscription", http.MethodPost, "/api/cancel-subscription", "", token, http.StatusNotFound, "No active subscription found"},
		{"explain_anonymous", http.MethodPost, "/api/explain-error", `{"errorText":"nil pointer","isAnonymous":true}`, "", http.StatusOK, "Nil pointer."},
		{"explain_requires_session_or_anonymous", http.MethodPost, "/api/explain-error", `{"errorText":"nil pointer"}`, "", http.StatusUnauthorized, "Please sign in or use anonymous mode"},
		{"webhook_outside_session", http.MethodPost, "/api/webhook", `{}`, "", http.StatusBadRequest, "No signature"},
		{"not_found", http.MethodGet, "/api/nope", "", "", http.StatusNotFound, "NOT_FOUND"},
		{"method_not_allowed", http.MethodGet, "/api/explain-error", "", "", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := env.do(test.method, test.target, test.body, test.token)

			assert.Equal(t, test.wantCode, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), test.wantBody)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_SignedInExplanationIsMetered(t *testing.T) {
	env := newRouterEnv(t)
	token := sessionToken(t, "u1", "u1@example.com")

	rec := env.do(http.MethodPost, "/api/explain-error", `{"errorText":"nil pointer"}`, token)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.store.UsageCount("u1"))

	rec = env.do(http.MethodGet, "/api/queries", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errorText":"nil pointer"`)
}

func TestRouter_ExpiredTokenIsAnonymous(t *testing.T) {
	env := newRouterEnv(t)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/api/usage", "", signed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"isPro":false,"limit":2,"isAnonymous":true}`, rec.Body.String())
}

func TestRouter_ProUsage(t *testing.T) {
	env := newRouterEnv(t)
	env.store.PutSubscription(model.Subscription{UserID: "u1", Status: model.StatusActive})

	rec := env.do(http.MethodGet, "/api/usage", "", sessionToken(t, "u1", "u1@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"isPro":true,"limit":null}`, rec.Body.String())
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"postgres://errmate:s3cret@db:5432/errmate?sslmode=disable", "postgres://errmate@db:5432/errmate?sslmode=disable"},
		{"redis://:s3cret@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"redis://cache:6379", "redis://cache:6379"},
	}

	for _, test := range tests {
		if got := redactURL(test.in); got != test.want {
			t.Errorf("redactURL(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	dsn := "postgres://errmate:s3cret@db:5432/errmate"
	err := errors.New("dial " + dsn + ": refused; password=hunter2 host=db")

	got := sanitizeError(err, dsn)
	if strings.Contains(got, "s3cret") || strings.Contains(got, "hunter2") {
		t.Fatalf("secrets leaked: %s", got)
	}
	if sanitizeError(nil) != "" {
		t.Fatal("nil error should sanitize to empty string")
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("DEBUG").String() != "DEBUG" || parseLogLevel("bogus").String() != "INFO" {
		t.Fatal("unexpected log level mapping")
	}
}
