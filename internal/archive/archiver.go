// Package archive copies the activity trail to object storage. It never
// deletes rows; each run uploads the entries written since the previous run.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/activity"
	"github.com/maulvi-zm/trackure/internal/ids"
	"github.com/maulvi-zm/trackure/internal/obs"
)

// Uploader stores one object.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Source pages through the activity trail.
type Source interface {
	List(ctx context.Context, p activity.Page) ([]activity.View, error)
}

// Result describes one archive run.
type Result struct {
	Key     string
	Entries int
	LastID  int64
}

const defaultCommitLag = time.Minute

type Archiver struct {
	source   Source
	uploader Uploader
	prefix   string
	lag      time.Duration
	now      func() time.Time
	log      logrus.FieldLogger

	mu     sync.Mutex
	lastID int64
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithPrefix sets the key prefix, "activity" by default.
func WithPrefix(p string) Option {
	return func(a *Archiver) {
		if p != "" {
			a.prefix = p
		}
	}
}

// WithClock overrides the time source used for object keys and the commit lag.
func WithClock(fn func() time.Time) Option {
	return func(a *Archiver) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithCommitLag holds back entries written less than d ago. Ids come from a
// sequence, so a slow transaction can commit a lower id after a higher one
// was archived; the lag gives such rows time to become visible before the
// cursor moves past them. Defaults to one minute; zero disables it.
func WithCommitLag(d time.Duration) Option {
	return func(a *Archiver) {
		if d >= 0 {
			a.lag = d
		}
	}
}

// WithStartAfter skips entries up to and including id.
func WithStartAfter(id int64) Option {
	return func(a *Archiver) { a.lastID = id }
}

func NewArchiver(source Source, uploader Uploader, opts ...Option) (*Archiver, error) {
	if source == nil || uploader == nil {
		return nil, errors.New("archive source and uploader are required")
	}
	a := &Archiver{
		source:   source,
		uploader: uploader,
		prefix:   "activity",
		lag:      defaultCommitLag,
		now:      time.Now,
		log:      obs.Logger().WithField("component", "archive"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run uploads entries newer than the last archived id as one NDJSON object
// keyed by date and a ULID.
// It returns a zero Result when there is nothing new. Runs are serialized.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var views []activity.View
	after := a.lastID
	for {
		page, err := a.source.List(ctx, activity.Page{AfterID: after, Limit: activity.MaxPageSize})
		if err != nil {
			obs.ArchiveRuns.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("read activity: %w", err)
		}
		views = append(views, page...)
		if len(page) < activity.MaxPageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	now := a.now().UTC()
	views = settled(views, now.Add(-a.lag))
	if len(views) == 0 {
		obs.ArchiveRuns.WithLabelValues("empty").Inc()
		return Result{}, nil
	}

	body, err := activity.Encode(activity.FormatNDJSON, views)
	if err != nil {
		obs.ArchiveRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}
	res := Result{
		Key:     path.Join(a.prefix, now.Format("2006/01/02"), ids.At(now)+".ndjson"),
		Entries: len(views),
		LastID:  views[len(views)-1].ID,
	}
	if err := a.uploader.Put(ctx, res.Key, body, activity.FormatNDJSON.ContentType()); err != nil {
		obs.ArchiveRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}
	a.lastID = res.LastID
	obs.ArchiveRuns.WithLabelValues("ok").Inc()
	a.log.WithFields(logrus.Fields{
		"key":     res.Key,
		"entries": res.Entries,
		"last_id": res.LastID,
	}).Info("activity archived")
	return res, nil
}

// settled returns the leading run of views written at or before cutoff. The
// cursor never advances past the first entry that is too recent.
func settled(views []activity.View, cutoff time.Time) []activity.View {
	for i, v := range views {
		if v.Timestamp.After(cutoff) {
			return views[:i]
		}
	}
	return views
}
