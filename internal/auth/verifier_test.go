package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/errmate/errmate/internal/model"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":   "user-123",
		"email": "dev@example.com",
		"iss":   "https://auth.errmate.dev",
		"aud":   "errmate",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	}
}

func TestNewVerifier_RequiresKeySource(t *testing.T) {
	t.Parallel()

	if _, err := NewVerifier(VerifierConfig{}); !errors.Is(err, ErrNoVerifier) {
		t.Fatalf("expected ErrNoVerifier, got %v", err)
	}
}

func TestVerify_HS256(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(VerifierConfig{
		Secret:   testSecret,
		Issuer:   "https://auth.errmate.dev",
		Audience: "errmate",
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	user, err := v.Verify(signHS256(t, testSecret, validClaims()))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != "user-123" || user.Email != "dev@example.com" {
		t.Errorf("user = %+v", user)
	}
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: "https://auth.errmate.dev", Audience: "errmate"})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	tests := []struct {
		name   string
		secret string
		mutate func(jwt.MapClaims)
		want   error
	}{
		{"wrong secret", "another-secret-another-secret-!!", func(jwt.MapClaims) {}, ErrInvalidToken},
		{"expired", testSecret, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, ErrInvalidToken},
		{"no expiry", testSecret, func(c jwt.MapClaims) { delete(c, "exp") }, ErrInvalidToken},
		{"wrong issuer", testSecret, func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }, ErrInvalidToken},
		{"wrong audience", testSecret, func(c jwt.MapClaims) { c["aud"] = "other" }, ErrInvalidToken},
		{"missing sub", testSecret, func(c jwt.MapClaims) { delete(c, "sub") }, ErrMissingSub},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims := validClaims()
			tt.mutate(claims)

			_, err := v.Verify(signHS256(t, tt.secret, claims))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestVerify_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-key",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(server.Close)

	v, err := NewVerifier(VerifierConfig{JWKSURL: server.URL})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	user, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != "user-123" {
		t.Errorf("user id = %q", user.ID)
	}

	// HMAC tokens are refused when no secret is configured.
	if _, err := v.Verify(signHS256(t, testSecret, validClaims())); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for HS256 token, got %v", err)
	}
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		token, ok := ExtractBearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Errorf("ExtractBearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}

func TestUserFromContext(t *testing.T) {
	t.Parallel()

	if UserFromContext(context.Background()) != nil {
		t.Fatal("expected nil user on empty context")
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty user id on empty context")
	}

	ctx := ContextWithUser(context.Background(), &model.User{ID: "u1", Email: "a@b.c"})
	if got := UserIDFromContext(ctx); got != "u1" {
		t.Fatalf("user id = %q, want u1", got)
	}
}
