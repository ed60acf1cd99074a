// Command dev-session mints a session token for local development and can
// grant the user Pro status directly in the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/model"
	"github.com/errmate/errmate/internal/repository"
)

type output struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Pro       bool   `json:"pro"`
}

func main() {
	var (
		secret      = flag.String("secret", os.Getenv("AUTH_JWT_SECRET"), "HS256 secret shared with the API")
		issuer      = flag.String("issuer", os.Getenv("AUTH_ISSUER"), "Token issuer (optional)")
		audience    = flag.String("audience", os.Getenv("AUTH_AUDIENCE"), "Token audience (optional)")
		userID      = flag.String("user-id", "dev-user", "Subject of the token")
		email       = flag.String("email", "dev@errmate.local", "Email claim")
		ttl         = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		pro         = flag.Bool("pro", false, "Mark the user's subscription active")
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string, required with -pro")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	expiresAt := time.Now().Add(*ttl)
	claims := auth.Claims{
		Email: *email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *userID,
			Issuer:    *issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if *audience != "" {
		claims.Audience = jwt.ClaimStrings{*audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{Secret: *secret, Issuer: *issuer, Audience: *audience})
	if err != nil {
		fmt.Fprintln(os.Stderr, "build verifier:", err)
		os.Exit(1)
	}
	if _, err := verifier.Verify(token); err != nil {
		fmt.Fprintln(os.Stderr, "minted token does not verify:", err)
		os.Exit(1)
	}

	if *pro {
		if err := grantPro(*databaseURL, *userID); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	out := output{
		UserID:    *userID,
		Email:     *email,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		Pro:       *pro,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func grantPro(databaseURL, userID string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required with -pro")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, databaseURL, repository.PoolConfig{MaxConns: 1})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	if _, err := repo.ApplySubscriptionState(ctx, model.SubscriptionUpdate{
		UserID:     userID,
		Status:     model.StatusActive,
		ObservedAt: time.Now(),
		Source:     model.SourceSync,
	}); err != nil {
		return fmt.Errorf("grant pro: %w", err)
	}
	return nil
}
