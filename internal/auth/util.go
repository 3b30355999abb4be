package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/NordCoder/Taskboard/internal/domain/auth"
	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("invalid token")

type Config struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
}

// Tokens issues and verifies HS256 access tokens whose subject is the user id.
type Tokens struct {
	cfg Config
	now func() time.Time
}

var _ domain.Verifier = (*Tokens)(nil)

func NewTokens(cfg Config) *Tokens {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	return &Tokens{cfg: cfg, now: time.Now}
}

func (t *Tokens) Issue(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("issue token: empty subject")
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    t.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuedAt(),
	}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.cfg.Secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", errors.Join(domain.ErrUnauthenticated, ErrTokenInvalid)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errors.Join(domain.ErrUnauthenticated, ErrTokenInvalid)
	}
	return sub, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header value.
func BearerToken(header string) string {
	token, found := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}
