package httpapi

import (
	"net/http"

	"github.com/maulvi-zm/trackure/internal/auth"
)

func (a *API) handleRoutePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Routes)
}

// handleRouteCheck evaluates the route policy for the caller using the same
// role list GET /role returns.
func (a *API) handleRouteCheck(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")
	if target == "" {
		writeError(w, r, http.StatusBadRequest, "path is required")
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	var roles auth.RoleSet
	if ok {
		var err error
		roles, err = a.deps.Roles.ActiveRoles(r.Context(), id.ID)
		if err != nil {
			a.handleServiceError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, a.deps.Routes.Evaluate(target, ok, roles))
}
