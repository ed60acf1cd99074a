package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/model"
)

type stubVerifier struct {
	users map[string]*model.User
}

func (s stubVerifier) Verify(token string) (*model.User, error) {
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, errors.New("token is invalid")
}

func TestSession(t *testing.T) {
	t.Parallel()

	verifier := stubVerifier{users: map[string]*model.User{
		"good": {ID: "u1", Email: "u1@example.com"},
	}}

	tests := []struct {
		name   string
		header string
		cookie string
		wantID string
	}{
		{"bearer", "Bearer good", "", "u1"},
		{"lowercase scheme", "bearer good", "", "u1"},
		{"cookie", "", "good", "u1"},
		{"header wins over cookie", "Bearer bad", "good", ""},
		{"invalid token is anonymous", "Bearer bad", "", ""},
		{"basic scheme ignored", "Basic good", "", ""},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotID string
			handler := Session(SessionConfig{
				Logger:     discardLogger(),
				Verifier:   verifier,
				CookieName: "errmate_session",
			})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID = auth.UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "errmate_session", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if gotID != tt.wantID {
				t.Errorf("user id = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	handler := RequireSession(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/create-checkout", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["code"] != "UNAUTHORIZED" || body["error"] != "Unauthorized" {
		t.Errorf("unexpected body: %v", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/create-checkout", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), &model.User{ID: "u1"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	handler := Recoverer(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id %q not echoed, header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "req-123" {
		t.Errorf("request id = %q, want req-123", seen)
	}
}
