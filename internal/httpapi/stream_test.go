package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulvi-zm/trackure/internal/activity"
	"github.com/maulvi-zm/trackure/internal/auth"
)

func TestActivityStreamPushesRecordedEntries(t *testing.T) {
	env := newTestEnv(t)
	org := env.store.AddOrganization("Procurement")
	_, adminToken := env.user("watcher@example.com", grant{org, auth.RoleAdmin})
	_, token := env.user("mover@example.com", grant{org, auth.RoleRequester})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/activity/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": stream started\n", line)
	require.Equal(t, 1, env.feed.Subscribers())

	resp2 := env.do(http.MethodPut, "/organizations/active", token, map[string]any{"organization_id": org.ID})
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var rec activity.Recorded
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &rec))
			break
		}
	}
	assert.Equal(t, fmt.Sprintf("switched active organization to %d", org.ID), rec.Activity)
	require.NotNil(t, rec.OrganizationID)
	assert.Equal(t, org.ID, *rec.OrganizationID)
	assert.Equal(t, env.roles[auth.RoleRequester].ID, rec.RoleID)

	views, err := env.deps.Query.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, views[0].ID, rec.ID)
	assert.True(t, views[0].Timestamp.Equal(rec.Timestamp), "feed and trail agree on %v vs %v", rec.Timestamp, views[0].Timestamp)
}

func TestActivityStreamRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	org := env.store.AddOrganization("Procurement")
	_, token := env.user("req@example.com", grant{org, auth.RoleRequester})

	resp := env.do(http.MethodGet, "/activity/stream", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestActivityStreamDisabledWithoutFeed(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Feed = nil })
	org := env.store.AddOrganization("Procurement")
	_, token := env.user("admin@example.com", grant{org, auth.RoleAdmin})

	resp := env.do(http.MethodGet, "/activity/stream", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
