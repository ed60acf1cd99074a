package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = origins

	req := httptest.NewRequest(method, "/api/explain-error", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	CORS(cfg)(okHandler).ServeHTTP(rec, req)
	return rec
}

func TestCORS_Origins(t *testing.T) {
	webApp := []string{"http://localhost:3000", "*.errmate.dev"}

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"web app", http.MethodPost, "http://localhost:3000", http.StatusOK, "http://localhost:3000"},
		{"subdomain", http.MethodGet, "https://app.errmate.dev", http.StatusOK, "https://app.errmate.dev"},
		{"uppercase origin", http.MethodGet, "HTTPS://APP.ERRMATE.DEV", http.StatusOK, "HTTPS://APP.ERRMATE.DEV"},
		{"lookalike domain", http.MethodGet, "https://evilerrmate.dev", http.StatusOK, ""},
		{"bare suffix", http.MethodGet, "https://.errmate.dev", http.StatusOK, ""},
		{"unknown preflight", http.MethodOptions, "https://evil.example", http.StatusForbidden, ""},
		{"same-origin request", http.MethodPost, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := corsRequest(t, webApp, tt.method, tt.origin)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	rec := corsRequest(t, nil, http.MethodGet, "http://localhost:3000")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	rec := corsRequest(t, []string{"http://localhost:3000"}, http.MethodOptions, "http://localhost:3000")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_ExposesRateLimitHeaders(t *testing.T) {
	rec := corsRequest(t, []string{"http://localhost:3000"}, http.MethodPost, "http://localhost:3000")

	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	assert.Contains(t, exposed, "Retry-After")
	assert.Contains(t, exposed, "X-RateLimit-Remaining")
	assert.Contains(t, exposed, "X-Request-ID")
}
