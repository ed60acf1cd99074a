package middleware

import (
	"net/http"
)

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS so the API works over plain http locally.
	IsDevelopment bool
}

type header struct{ name, value string }

// apiHeaders applies to every response. The API only ever returns JSON.
var apiHeaders = []header{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	// The web app on a sibling subdomain reads API responses.
	{"Cross-Origin-Resource-Policy", "same-site"},
	// Explanations and billing state are per user.
	{"Cache-Control", "no-store"},
}

// Security sets the API response headers before the handler runs.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	headers := apiHeaders
	if !cfg.IsDevelopment {
		headers = append(headers[:len(headers):len(headers)],
			header{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hd := range headers {
				h.Set(hd.name, hd.value)
			}
			h.Del("Server")
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize returns a middleware that limits request body size.
// Declared oversize bodies are rejected up front; others are cut off by
// http.MaxBytesReader while being read.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
