package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maulvi-zm/trackure/internal/obs"
)

const (
	defaultJWKSTTL   = time.Hour
	defaultRefetch   = time.Minute
	maxJWKSBodyBytes = 1 << 20
	jwksFetchTimeout = 10 * time.Second
	entraLoginHost   = "https://login.microsoftonline.com"
)

// EntraEndpoints returns the JWKS URL and v2.0 issuer for a Microsoft Entra tenant.
func EntraEndpoints(tenantID string) (jwksURL, issuer string) {
	tenantID = strings.TrimSpace(tenantID)
	return fmt.Sprintf("%s/%s/discovery/v2.0/keys", entraLoginHost, tenantID),
		fmt.Sprintf("%s/%s/v2.0", entraLoginHost, tenantID)
}

// JWKSVerifier verifies RS256 tokens against a remote JSON Web Key Set.
//
// The key set lives in an expirable cache: empty until first use, refilled
// after ttl. Concurrent misses each fetch and store the same document, which
// is harmless, so there is no lock around the refresh. A token with an unknown
// kid forces at most one early refetch per refetch interval.
type JWKSVerifier struct {
	url      string
	issuer   string
	audience string
	client   *http.Client
	now      func() time.Time
	keys     *expirable.LRU[string, *jose.JSONWebKeySet]

	refetchEvery time.Duration
	lastForced   atomic.Int64 // unix nanos of the last forced refetch
}

// JWKSOption configures a JWKSVerifier.
type JWKSOption func(*JWKSVerifier)

// WithHTTPClient overrides the client used to fetch the key set.
func WithHTTPClient(c *http.Client) JWKSOption {
	return func(v *JWKSVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithVerifierClock overrides the time source used for expiry checks.
func WithVerifierClock(fn func() time.Time) JWKSOption {
	return func(v *JWKSVerifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// WithRefetchInterval sets the minimum gap between refetches forced by an
// unknown kid.
func WithRefetchInterval(d time.Duration) JWKSOption {
	return func(v *JWKSVerifier) {
		if d > 0 {
			v.refetchEvery = d
		}
	}
}

// NewJWKSVerifier builds a verifier for tokens issued by issuer for audience.
func NewJWKSVerifier(jwksURL, issuer, audience string, ttl time.Duration, opts ...JWKSOption) (*JWKSVerifier, error) {
	jwksURL = strings.TrimSpace(jwksURL)
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	v := &JWKSVerifier{
		url:      jwksURL,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		client:   &http.Client{Timeout: jwksFetchTimeout},
		now:      time.Now,
		keys:     expirable.NewLRU[string, *jose.JSONWebKeySet](1, nil, ttl),

		refetchEvery: defaultRefetch,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify implements Verifier.
func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	var fetchErr error
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.lookup(ctx, kid)
		if err != nil {
			fetchErr = err
			return nil, err
		}
		return key, nil
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, keyfunc, opts...)
	if err != nil {
		if fetchErr != nil && !errors.Is(fetchErr, ErrInvalidToken) {
			return nil, fetchErr
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Principal() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// lookup finds the signing key for kid, refetching once when the cached set
// does not know it (Entra rotates keys without notice).
func (v *JWKSVerifier) lookup(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, ErrInvalidToken
	}
	set, cached, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := findKey(set, kid); ok {
		return key, nil
	}
	if !cached || !v.claimForcedRefetch() {
		return nil, ErrInvalidToken
	}
	v.keys.Remove(v.url)
	set, _, err = v.keySet(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := findKey(set, kid); ok {
		return key, nil
	}
	return nil, ErrInvalidToken
}

// claimForcedRefetch reports whether this caller may bypass the cache. Only
// one caller wins per refetch interval.
func (v *JWKSVerifier) claimForcedRefetch() bool {
	now := v.now().UnixNano()
	last := v.lastForced.Load()
	if last != 0 && now-last < int64(v.refetchEvery) {
		return false
	}
	return v.lastForced.CompareAndSwap(last, now)
}

func (v *JWKSVerifier) keySet(ctx context.Context) (*jose.JSONWebKeySet, bool, error) {
	if set, ok := v.keys.Get(v.url); ok {
		return set, true, nil
	}
	set, err := v.fetch(ctx)
	if err != nil {
		obs.JWKSRefreshes.WithLabelValues("error").Inc()
		return nil, false, err
	}
	obs.JWKSRefreshes.WithLabelValues("ok").Inc()
	v.keys.Add(v.url, set)
	return set, false, nil
}

func (v *JWKSVerifier) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return &set, nil
}

func findKey(set *jose.JSONWebKeySet, kid string) (any, bool) {
	for _, k := range set.Key(kid) {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		return k.Key, true
	}
	return nil, false
}
