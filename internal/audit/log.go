// Package audit writes security-relevant events to the structured log. These
// lines complement the activity trail: they cover denials and requests that
// never produce an activity row.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/auth"
	"github.com/maulvi-zm/trackure/internal/obs"
)

// Event names.
const (
	EventAccessDenied         = "authz.denied"
	EventRoleAssigned         = "role.assigned"
	EventRoleRevoked          = "role.revoked"
	EventOrganizationSwitched = "organization.switched"
	EventTokenIssued          = "auth.token.issued"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the identifier set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// LogEvent writes an audit entry enriched with the request id and the caller
// identity found in ctx.
func LogEvent(ctx context.Context, event string, fields logrus.Fields) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := obs.Logger().WithFields(logrus.Fields{
		"type":  "audit",
		"event": event,
	})
	if rid := RequestID(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		entry = entry.WithFields(logrus.Fields{"user_id": id.ID, "email": id.Email})
	}
	copied := make(logrus.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	entry.WithField("fields", copied).Info("audit")
	return nil
}
