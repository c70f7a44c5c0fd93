// Package stream fans written activity entries out to live subscribers.
package stream

import (
	"context"
	"sync"

	"github.com/maulvi-zm/trackure/internal/activity"
)

const subscriberBuffer = 16

var _ activity.Publisher = (*Feed)(nil)

// Feed fan-outs recorded activity to all active subscribers (SSE clients).
type Feed struct {
	mu   sync.RWMutex
	subs map[int]chan activity.Recorded
	next int
}

// New returns a feed with no subscribers.
func New() *Feed {
	return &Feed{subs: make(map[int]chan activity.Recorded)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// entries. The channel is closed when ctx ends.
func (f *Feed) Subscribe(ctx context.Context) <-chan activity.Recorded {
	ch := make(chan activity.Recorded, subscriberBuffer)

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()

	return ch
}

// Publish delivers rec to every subscriber with room in its buffer.
func (f *Feed) Publish(rec activity.Recorded) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- rec:
		default:
			// slow subscriber; drop
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
