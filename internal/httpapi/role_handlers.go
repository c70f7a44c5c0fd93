package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/activity"
	"github.com/maulvi-zm/trackure/internal/audit"
	"github.com/maulvi-zm/trackure/internal/auth"
)

type activeOrganizationRequest struct {
	OrganizationID int64 `json:"organization_id"`
}

type assignmentRequest struct {
	OrganizationID int64 `json:"organization_id"`
	RoleID         int64 `json:"role_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	roles, err := a.deps.Roles.ActiveRoles(r.Context(), id.ID)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles.Sorted())
}

func (a *API) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	orgs, err := a.deps.Roles.UserOrganizations(r.Context(), id.ID)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (a *API) handleGetActiveOrganization(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	org, ok, err := a.deps.Roles.CurrentActiveOrganization(r.Context(), id.ID)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "no active organization")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleSetActiveOrganization(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	var req activeOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Roles.SetActiveOrganization(r.Context(), id.ID, req.OrganizationID); err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), id.ID, req.OrganizationID,
		fmt.Sprintf("switched active organization to %d", req.OrganizationID))
	_ = audit.LogEvent(r.Context(), audit.EventOrganizationSwitched, logrus.Fields{
		"organization_id": req.OrganizationID,
	})

	org, ok, err := a.deps.Roles.CurrentActiveOrganization(r.Context(), id.ID)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	if !ok {
		// The organization was deleted between the write and the read.
		writeError(w, r, http.StatusNotFound, "no active organization")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFromContext(r.Context())
	asg, ok := a.assignmentFromRequest(w, r)
	if !ok {
		return
	}
	if err := a.deps.Roles.AssignRoleAs(r.Context(), caller.ID, asg); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			_ = audit.LogEvent(r.Context(), audit.EventAccessDenied, assignmentFields(asg))
			forbidden(w)
			return
		}
		a.handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), caller.ID, asg.OrganizationID,
		fmt.Sprintf("assigned role %d to user %d", asg.RoleID, asg.UserID))
	_ = audit.LogEvent(r.Context(), audit.EventRoleAssigned, assignmentFields(asg))
	writeJSON(w, http.StatusCreated, asg)
}

func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFromContext(r.Context())
	asg, ok := a.assignmentFromRequest(w, r)
	if !ok {
		return
	}
	if err := a.deps.Roles.RevokeRole(r.Context(), asg); err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), caller.ID, asg.OrganizationID,
		fmt.Sprintf("revoked role %d from user %d", asg.RoleID, asg.UserID))
	_ = audit.LogEvent(r.Context(), audit.EventRoleRevoked, assignmentFields(asg))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignmentFromRequest(w http.ResponseWriter, r *http.Request) (auth.Assignment, bool) {
	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return auth.Assignment{}, false
	}
	var req assignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return auth.Assignment{}, false
	}
	return auth.Assignment{UserID: userID, OrganizationID: req.OrganizationID, RoleID: req.RoleID}, true
}

func assignmentFields(asg auth.Assignment) logrus.Fields {
	return logrus.Fields{
		"target_user_id":  asg.UserID,
		"organization_id": asg.OrganizationID,
		"role_id":         asg.RoleID,
	}
}

// record appends an activity entry for a completed action. The entry carries
// the actor's role in organizationID, or their first role when they hold none
// there. A failed write is logged by the activity logger and otherwise ignored.
func (a *API) record(ctx context.Context, userID, organizationID int64, text string) {
	roleID, ok, err := a.deps.Roles.RoleIDIn(ctx, userID, organizationID)
	if err != nil || !ok {
		a.log.WithError(err).WithFields(logrus.Fields{
			"user_id":         userID,
			"organization_id": organizationID,
		}).Warn("activity not recorded: actor role unknown")
		return
	}
	a.deps.Activity.Record(ctx, activity.Entry{
		UserID:         userID,
		OrganizationID: activity.OrgID(organizationID),
		RoleID:         roleID,
		Activity:       text,
	})
}
