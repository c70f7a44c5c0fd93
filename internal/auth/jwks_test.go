package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://login.microsoftonline.com/tenant/v2.0"
	testAudience = "api://trackure"
)

type jwksServer struct {
	*httptest.Server
	hits atomic.Int32
	keys atomic.Value
}

func newJWKSServer(t *testing.T, keys ...jose.JSONWebKey) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.setKeys(keys...)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.keys.Load())
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...jose.JSONWebKey) {
	s.keys.Store(jose.JSONWebKeySet{Keys: keys})
}

func rsaKey(t *testing.T, kid string) (*rsa.PrivateKey, jose.JSONWebKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv, jose.JSONWebKey{Key: &priv.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
}

func signRS256(t *testing.T, priv *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(priv)
	require.NoError(t, err)
	return raw
}

func entraClaims(email string, exp time.Time) Claims {
	return Claims{
		PreferredUsername: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestEntraEndpoints(t *testing.T) {
	url, iss := EntraEndpoints(" contoso ")
	assert.Equal(t, "https://login.microsoftonline.com/contoso/discovery/v2.0/keys", url)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/v2.0", iss)
}

func TestJWKSVerifierAcceptsSignedToken(t *testing.T) {
	priv, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	v, err := NewJWKSVerifier(srv.URL, testIssuer, testAudience, time.Hour)
	require.NoError(t, err)

	raw := signRS256(t, priv, "k1", entraClaims("Alice@Example.com", time.Now().Add(time.Hour)))
	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Principal())

	_, err = v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.hits.Load(), "key set is cached")
}

func TestJWKSVerifierRejectsWrongAudienceAndExpiry(t *testing.T) {
	priv, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	v, err := NewJWKSVerifier(srv.URL, testIssuer, testAudience, time.Hour)
	require.NoError(t, err)

	c := entraClaims("a@example.com", time.Now().Add(time.Hour))
	c.Audience = jwt.ClaimStrings{"api://someone-else"}
	_, err = v.Verify(context.Background(), signRS256(t, priv, "k1", c))
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := entraClaims("a@example.com", time.Now().Add(-time.Hour))
	_, err = v.Verify(context.Background(), signRS256(t, priv, "k1", expired))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWKSVerifierRefetchesOnUnknownKid(t *testing.T) {
	_, oldPub := rsaKey(t, "old")
	srv := newJWKSServer(t, oldPub)
	v, err := NewJWKSVerifier(srv.URL, testIssuer, testAudience, time.Hour)
	require.NoError(t, err)

	// Warm the cache with the old key set.
	_, err = v.lookup(context.Background(), "old")
	require.NoError(t, err)

	newPriv, newPub := rsaKey(t, "new")
	srv.setKeys(oldPub, newPub)

	raw := signRS256(t, newPriv, "new", entraClaims("a@example.com", time.Now().Add(time.Hour)))
	_, err = v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestJWKSVerifierBoundsForcedRefetches(t *testing.T) {
	priv, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	now := time.Now()
	var offset atomic.Int64
	clock := func() time.Time { return now.Add(time.Duration(offset.Load())) }
	v, err := NewJWKSVerifier(srv.URL, testIssuer, testAudience, time.Hour,
		WithVerifierClock(clock), WithRefetchInterval(time.Minute))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signRS256(t, priv, "k1", entraClaims("a@example.com", now.Add(time.Hour))))
	require.NoError(t, err)
	require.Equal(t, int32(1), srv.hits.Load())

	for i := 0; i < 50; i++ {
		kid := fmt.Sprintf("bogus-%d", i)
		_, err := v.Verify(context.Background(), signRS256(t, priv, kid, entraClaims("a@example.com", now.Add(time.Hour))))
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, int32(2), srv.hits.Load(), "one forced refetch per interval")

	_, err = v.Verify(context.Background(), signRS256(t, priv, "k1", entraClaims("a@example.com", now.Add(time.Hour))))
	require.NoError(t, err, "known keys still verify from cache")
	assert.Equal(t, int32(2), srv.hits.Load())

	offset.Store(int64(2 * time.Minute))
	_, err = v.Verify(context.Background(), signRS256(t, priv, "bogus-late", entraClaims("a@example.com", now.Add(time.Hour))))
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, int32(3), srv.hits.Load(), "interval elapsed")
}

func TestJWKSVerifierSurfacesFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	v, err := NewJWKSVerifier(srv.URL, testIssuer, testAudience, time.Hour)
	require.NoError(t, err)

	priv, _ := rsaKey(t, "k1")
	raw := signRS256(t, priv, "k1", entraClaims("a@example.com", time.Now().Add(time.Hour)))
	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestJWKSVerifierRejectsHS256(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	v, err := NewJWKSVerifier(srv.URL, testIssuer, testAudience, time.Hour)
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, entraClaims("a@example.com", time.Now().Add(time.Hour)))
	tok.Header["kid"] = "k1"
	raw, err := tok.SignedString([]byte("guess"))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
