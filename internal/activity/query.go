package activity

import (
	"context"
	"errors"
	"fmt"
)

// MaxPageSize bounds a single paginated read.
const MaxPageSize = 500

// ErrInvalidPage is returned for empty, negative or oversized page requests.
var ErrInvalidPage = errors.New("activity: invalid page")

// Query serves the activity trail for display.
type Query struct {
	store Store
}

// NewQuery returns a Query reading from store.
func NewQuery(store Store) *Query {
	return &Query{store: store}
}

// ListAll returns the whole trail in insertion order.
func (q *Query) ListAll(ctx context.Context) ([]View, error) {
	return q.list(ctx, Page{})
}

// List returns up to p.Limit entries with ids greater than p.AfterID. Unlike
// ListAll it is always bounded, so p.Limit must be in 1..MaxPageSize.
func (q *Query) List(ctx context.Context, p Page) ([]View, error) {
	if p.AfterID < 0 || p.Limit < 1 || p.Limit > MaxPageSize {
		return nil, fmt.Errorf("%w: after must not be negative and limit must be between 1 and %d", ErrInvalidPage, MaxPageSize)
	}
	return q.list(ctx, p)
}

func (q *Query) list(ctx context.Context, p Page) ([]View, error) {
	views, err := q.store.ListActivity(ctx, p)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []View{}
	}
	return views, nil
}
