package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulvi-zm/trackure/internal/obs"
)

type stubStore struct {
	appendFn func(ctx context.Context, e Entry) (int64, error)
	listFn   func(ctx context.Context, p Page) ([]View, error)
}

// stubCreatedAt is the timestamp stubStore reports for every append.
var stubCreatedAt = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func (s *stubStore) AppendActivity(ctx context.Context, e Entry) (int64, time.Time, error) {
	if s.appendFn == nil {
		return 0, time.Time{}, errors.New("append not implemented")
	}
	id, err := s.appendFn(ctx, e)
	if err != nil {
		return 0, time.Time{}, err
	}
	return id, stubCreatedAt, nil
}

func (s *stubStore) ListActivity(ctx context.Context, p Page) ([]View, error) {
	if s.listFn == nil {
		return nil, errors.New("list not implemented")
	}
	return s.listFn(ctx, p)
}

func TestRecordWritesTrimmedEntry(t *testing.T) {
	var got Entry
	store := &stubStore{appendFn: func(_ context.Context, e Entry) (int64, error) {
		got = e
		return 1, nil
	}}
	ok := NewLogger(store).Record(context.Background(), Entry{
		UserID:         3,
		OrganizationID: OrgID(7),
		RoleID:         2,
		Activity:       "  changed active organization  ",
	})
	require.True(t, ok)
	assert.Equal(t, "changed active organization", got.Activity)
	require.NotNil(t, got.OrganizationID)
	assert.Equal(t, int64(7), *got.OrganizationID)
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	obs.Init()
	before := testutil.ToFloat64(obs.ActivityLogFailures)
	store := &stubStore{appendFn: func(context.Context, Entry) (int64, error) {
		return 0, errors.New("connection reset")
	}}

	var ok bool
	require.NotPanics(t, func() {
		ok = NewLogger(store).Record(context.Background(), Entry{UserID: 1, RoleID: 1, Activity: "assigned role"})
	})
	assert.False(t, ok)
	assert.Equal(t, before+1, testutil.ToFloat64(obs.ActivityLogFailures))
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	calls := 0
	store := &stubStore{appendFn: func(context.Context, Entry) (int64, error) {
		calls++
		return 1, nil
	}}
	logger := NewLogger(store)
	cases := map[string]Entry{
		"blank activity": {UserID: 1, RoleID: 1, Activity: "   "},
		"missing user":   {RoleID: 1, Activity: "x"},
		"missing role":   {UserID: 1, Activity: "x"},
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, logger.Record(context.Background(), e))
		})
	}
	assert.Zero(t, calls)
}

func TestRecordOnNilLogger(t *testing.T) {
	var l *Logger
	assert.False(t, l.Record(context.Background(), Entry{UserID: 1, RoleID: 1, Activity: "x"}))
}

type publishedEntries []Recorded

func (p *publishedEntries) Publish(r Recorded) { *p = append(*p, r) }

func TestRecordPublishesOnlyWrittenEntries(t *testing.T) {
	fail := true
	store := &stubStore{appendFn: func(context.Context, Entry) (int64, error) {
		if fail {
			return 0, errors.New("disk full")
		}
		return 41, nil
	}}
	var published publishedEntries
	logger := NewLogger(store, WithPublisher(&published))

	assert.False(t, logger.Record(context.Background(), Entry{UserID: 1, RoleID: 1, Activity: "a"}))
	assert.Empty(t, published)

	fail = false
	assert.True(t, logger.Record(context.Background(), Entry{UserID: 1, RoleID: 1, OrganizationID: OrgID(5), Activity: "b"}))
	require.Len(t, published, 1)
	assert.Equal(t, int64(41), published[0].ID)
	assert.Equal(t, int64(5), *published[0].OrganizationID)
	assert.Equal(t, stubCreatedAt, published[0].Timestamp, "feed carries the stored timestamp")
}
