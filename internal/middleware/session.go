package middleware

import (
	"log/slog"
	"net/http"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/model"
)

// Verifier validates a session token.
type Verifier interface {
	Verify(token string) (*model.User, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger   *slog.Logger
	Verifier Verifier
	// CookieName is read when no Authorization header is sent.
	CookieName string
}

// Session returns a middleware that attaches the signed-in user, if any.
// A missing or invalid token leaves the request anonymous; handlers decide
// whether that is acceptable.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, cfg.CookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := cfg.Verifier.Verify(token)
			if err != nil {
				cfg.Logger.Warn("session rejected",
					slog.String("reason", err.Error()),
					slog.String("ip", getClientIP(r)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			setLogUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireSession rejects requests without a verified user.
// Must be applied after Session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request, cookieName string) string {
	if token, ok := auth.ExtractBearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
