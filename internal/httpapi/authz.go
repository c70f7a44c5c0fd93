package httpapi

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/audit"
	"github.com/maulvi-zm/trackure/internal/auth"
	"github.com/maulvi-zm/trackure/internal/obs"
)

// RoleChecker answers allowlist questions for a user.
type RoleChecker interface {
	HasAnyRole(ctx context.Context, allowed auth.RoleSet, userID int64) (bool, error)
}

// RequireRoles lets a request through only when the caller holds at least one
// of roles in any organization. Denied requests, including ones without an
// identity, get 403 with a plain-text marker and never reach next.
func RequireRoles(checker RoleChecker, roles ...auth.RoleName) func(http.Handler) http.Handler {
	allowed := auth.NewRoleSet(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				obs.AuthzDecisions.WithLabelValues("anonymous").Inc()
				denied(r, allowed)
				forbidden(w)
				return
			}
			ok, err := checker.HasAnyRole(r.Context(), allowed, id.ID)
			if err != nil {
				obs.AuthzDecisions.WithLabelValues("error").Inc()
				writeError(w, r, http.StatusInternalServerError, err.Error())
				return
			}
			if !ok {
				obs.AuthzDecisions.WithLabelValues("denied").Inc()
				denied(r, allowed)
				forbidden(w)
				return
			}
			obs.AuthzDecisions.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, "Unauthorized", http.StatusForbidden)
}

func denied(r *http.Request, allowed auth.RoleSet) {
	_ = audit.LogEvent(r.Context(), audit.EventAccessDenied, logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"required": allowed.Sorted(),
	})
}
