package activity

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/obs"
)

// Recorded is an entry that has been written, as announced to live subscribers.
type Recorded struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	OrganizationID *int64    `json:"organizationId,omitempty"`
	RoleID         int64     `json:"roleId"`
	Activity       string    `json:"activity"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher receives every successfully written entry. Publish must not block.
type Publisher interface {
	Publish(Recorded)
}

// Logger appends activity entries on a best-effort basis.
type Logger struct {
	store     Store
	publisher Publisher
	log       logrus.FieldLogger
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithPublisher announces written entries to p.
func WithPublisher(p Publisher) LoggerOption {
	return func(l *Logger) { l.publisher = p }
}

// NewLogger returns a Logger writing to store.
func NewLogger(store Store, opts ...LoggerOption) *Logger {
	l := &Logger{store: store, log: obs.Logger().WithField("component", "activity")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one entry and reports whether it was written. Failures are
// logged and counted but never returned: callers must not let a false result
// change the outcome of the action being audited.
func (l *Logger) Record(ctx context.Context, e Entry) bool {
	if l == nil || l.store == nil {
		return false
	}
	e.Activity = strings.TrimSpace(e.Activity)
	fields := logrus.Fields{
		"user_id":  e.UserID,
		"role_id":  e.RoleID,
		"activity": e.Activity,
	}
	if e.OrganizationID != nil {
		fields["organization_id"] = *e.OrganizationID
	}
	if e.Activity == "" || e.UserID <= 0 || e.RoleID <= 0 {
		obs.ActivityLogFailures.Inc()
		l.log.WithFields(fields).Warn("activity entry rejected: user, role and activity are required")
		return false
	}
	id, createdAt, err := l.store.AppendActivity(ctx, e)
	if err != nil {
		obs.ActivityLogFailures.Inc()
		l.log.WithFields(fields).WithError(err).Error("activity log write failed")
		return false
	}
	if l.publisher != nil {
		l.publisher.Publish(Recorded{
			ID:             id,
			UserID:         e.UserID,
			OrganizationID: e.OrganizationID,
			RoleID:         e.RoleID,
			Activity:       e.Activity,
			Timestamp:      createdAt.UTC(),
		})
	}
	return true
}
