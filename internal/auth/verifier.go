package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/errmate/errmate/internal/model"
)

const defaultLeeway = 30 * time.Second

// Verification errors.
var (
	ErrNoVerifier   = errors.New("auth: a JWT secret or JWKS URL is required")
	ErrInvalidToken = errors.New("auth: invalid session token")
	ErrMissingSub   = errors.New("auth: token missing sub")
)

// VerifierConfig configures a Verifier. At least one of Secret and JWKSURL
// must be set. Issuer and Audience are checked when non-empty.
type VerifierConfig struct {
	Secret   string
	JWKSURL  string
	Issuer   string
	Audience string
}

// Claims are the session claims ErrMate reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates session JWTs signed with a shared HMAC secret or with
// keys published at a JWKS endpoint.
type Verifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewVerifier builds a verifier. With a JWKS URL the key set is fetched
// once here and refreshed in the background.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Secret == "" && cfg.JWKSURL == "" {
		return nil, ErrNoVerifier
	}

	v := &Verifier{}
	var methods []string

	if cfg.Secret != "" {
		v.secret = []byte(cfg.Secret)
		methods = append(methods, jwt.SigningMethodHS256.Name, jwt.SigningMethodHS384.Name, jwt.SigningMethodHS512.Name)
	}
	if cfg.JWKSURL != "" {
		k, err := keyfunc.NewDefault([]string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
		}
		v.jwks = k
		methods = append(methods,
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name, jwt.SigningMethodES384.Name,
		)
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// Verify parses and validates a token and returns the user it names.
func (v *Verifier) Verify(tokenString string) (*model.User, error) {
	var claims Claims
	token, err := v.parser.ParseWithClaims(tokenString, &claims, v.keyFor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSub
	}

	return &model.User{ID: claims.Subject, Email: claims.Email}, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if v.secret == nil {
			return nil, errors.New("HMAC tokens are not accepted")
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, errors.New("asymmetric tokens are not accepted")
	}
	return v.jwks.Keyfunc(token)
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
