package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maulvi-zm/trackure/internal/activity"
	"github.com/maulvi-zm/trackure/internal/auth"
	"github.com/maulvi-zm/trackure/internal/obs"
	"github.com/maulvi-zm/trackure/internal/routeguard"
	"github.com/maulvi-zm/trackure/internal/store/memory"
	"github.com/maulvi-zm/trackure/internal/stream"
)

const testSecret = "test-secret-0123456789"

type testEnv struct {
	t      *testing.T
	store  *memory.Store
	roles  map[auth.RoleName]auth.Role
	tokens *auth.SecretVerifier
	feed   *stream.Feed
	deps   Deps
	srv    *httptest.Server
}

type grant struct {
	org  auth.Organization
	role auth.RoleName
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	store := memory.New()
	roles := store.SeedBuiltinRoles()
	feed := stream.New()
	svc, err := auth.NewService(store)
	require.NoError(t, err)
	tokens, err := auth.NewSecretVerifier(testSecret)
	require.NoError(t, err)
	policy, err := routeguard.Default()
	require.NoError(t, err)

	deps := Deps{
		Roles:     svc,
		Users:     store,
		Verifier:  tokens,
		DevTokens: tokens,
		Activity:  activity.NewLogger(store, activity.WithPublisher(feed)),
		Query:     activity.NewQuery(store),
		Routes:    policy,
		Feed:      feed,
		Version:   "test",
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	api, err := New(deps, Options{})
	require.NoError(t, err)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, store: store, roles: roles, tokens: tokens, feed: feed, deps: deps, srv: srv}
}

// user creates an active user holding grants and returns a bearer token for it.
func (e *testEnv) user(email string, grants ...grant) (auth.User, string) {
	e.t.Helper()
	u := e.store.AddUser(email)
	for _, g := range grants {
		require.NoError(e.t, e.store.AssignRole(context.Background(), auth.Assignment{
			UserID: u.ID, OrganizationID: g.org.ID, RoleID: e.roles[g.role].ID,
		}))
	}
	token, _, err := e.tokens.GenerateToken(email, time.Hour)
	require.NoError(e.t, err)
	return u, token
}

func (e *testEnv) do(method, path, token string, body any) *http.Response {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// failingActivityStore rejects every write.
type failingActivityStore struct {
	activity.Store
}

func (failingActivityStore) AppendActivity(context.Context, activity.Entry) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("activity table unavailable")
}

type stubRoleChecker struct {
	hasAnyRoleFn func(ctx context.Context, allowed auth.RoleSet, userID int64) (bool, error)
}

func (s *stubRoleChecker) HasAnyRole(ctx context.Context, allowed auth.RoleSet, userID int64) (bool, error) {
	if s.hasAnyRoleFn != nil {
		return s.hasAnyRoleFn(ctx, allowed, userID)
	}
	return false, nil
}

// captureAuditLines swaps the shared logger output for the duration of the test
// and returns a func yielding the audit entries written so far.
func captureAuditLines(t *testing.T) func() []map[string]any {
	t.Helper()
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return func() []map[string]any {
		var out []map[string]any
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			var entry map[string]any
			if json.Unmarshal([]byte(line), &entry) == nil && entry["type"] == "audit" {
				out = append(out, entry)
			}
		}
		return out
	}
}

// serve runs req through the full handler chain synchronously.
func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	e.t.Helper()
	api, err := New(e.deps, Options{})
	require.NoError(e.t, err)
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)
	return rr
}
