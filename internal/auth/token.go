package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verifier validates a raw bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// Claims is the subset of Entra ID access/ID token claims the service reads.
type Claims struct {
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	UPN               string `json:"upn,omitempty"`
	ObjectID          string `json:"oid,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the login name used to look up the local user: the first
// non-empty of preferred_username, email and upn, lower-cased.
func (c *Claims) Principal() string {
	for _, v := range []string{c.PreferredUsername, c.Email, c.UPN} {
		v = strings.TrimSpace(v)
		if v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

const devIssuer = "trackure-dev"

// SecretVerifier verifies HS256 tokens signed with a shared secret. It backs
// local development and tests where no Entra tenant is available.
type SecretVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewSecretVerifier returns a verifier for tokens signed with secret.
func NewSecretVerifier(secret string) (*SecretVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth secret is not configured")
	}
	return &SecretVerifier{secret: []byte(secret), now: time.Now}, nil
}

// GenerateToken signs a token for email valid for ttl.
func (v *SecretVerifier) GenerateToken(email string, ttl time.Duration) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", time.Time{}, errors.New("email is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	now := v.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		PreferredUsername: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    devIssuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify implements Verifier.
func (v *SecretVerifier) Verify(_ context.Context, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(devIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Principal() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []Verifier

// Verify implements Verifier.
func (c ChainVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	lastErr := ErrInvalidToken
	for _, v := range c {
		if v == nil {
			continue
		}
		claims, err := v.Verify(ctx, raw)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
