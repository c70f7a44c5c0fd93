package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulvi-zm/trackure/internal/activity"
)

func TestFeedDeliversToEverySubscriber(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := f.Subscribe(ctx)
	b := f.Subscribe(ctx)
	f.Publish(activity.Recorded{ID: 1, Activity: "x"})

	for _, ch := range []<-chan activity.Recorded{a, b} {
		select {
		case rec := <-ch:
			assert.Equal(t, int64(1), rec.ID)
		case <-time.After(time.Second):
			t.Fatal("no entry delivered")
		}
	}
}

func TestFeedDropsWhenSubscriberIsFull(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.Subscribe(ctx)
	for i := 0; i < subscriberBuffer+5; i++ {
		f.Publish(activity.Recorded{ID: int64(i + 1)})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestFeedClosesOnCancel(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := f.Subscribe(ctx)
	require.Equal(t, 1, f.Subscribers())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Eventually(t, func() bool { return f.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestLoggerPublishesWrittenEntries(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.Subscribe(ctx)

	logger := activity.NewLogger(appendOnly{}, activity.WithPublisher(f))
	require.True(t, logger.Record(ctx, activity.Entry{UserID: 2, RoleID: 3, Activity: " created request "}))

	rec := <-ch
	assert.Equal(t, int64(99), rec.ID)
	assert.Equal(t, "created request", rec.Activity)
	assert.Nil(t, rec.OrganizationID)
	assert.Equal(t, appendedAt, rec.Timestamp)
}

type appendOnly struct{}

var appendedAt = time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)

func (appendOnly) AppendActivity(context.Context, activity.Entry) (int64, time.Time, error) {
	return 99, appendedAt, nil
}

func (appendOnly) ListActivity(context.Context, activity.Page) ([]activity.View, error) {
	return nil, nil
}
