package auth

import (
	"context"
	"errors"
	"fmt"
)

// Service answers role questions for a user and applies administrative role changes.
//
// Roles are additive across organizations: a user who is ADMIN in one
// organization and REQUESTER in another holds both, whichever organization is
// currently active.
type Service struct {
	store RoleStore
}

func NewService(store RoleStore) (*Service, error) {
	if store == nil {
		return nil, errors.New("role store is required")
	}
	return &Service{store: store}, nil
}

// ActiveRoles returns the distinct role names the user holds in any organization.
// A user without assignments gets an empty set, not an error.
func (s *Service) ActiveRoles(ctx context.Context, userID int64) (RoleSet, error) {
	names, err := s.store.RoleNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewRoleSet(names...), nil
}

// HasAnyRole reports whether the user holds at least one role in allowed.
// An empty allowlist never matches.
func (s *Service) HasAnyRole(ctx context.Context, allowed RoleSet, userID int64) (bool, error) {
	if len(allowed) == 0 {
		return false, nil
	}
	held, err := s.ActiveRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	return held.Intersects(allowed), nil
}

// UserOrganizations lists every organization the user holds a role in.
func (s *Service) UserOrganizations(ctx context.Context, userID int64) ([]OrganizationRef, error) {
	orgs, err := s.store.UserOrganizations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orgs == nil {
		orgs = []OrganizationRef{}
	}
	return orgs, nil
}

// CurrentActiveOrganization returns the active organization, or ok=false when
// none is set or it references a deleted organization.
func (s *Service) CurrentActiveOrganization(ctx context.Context, userID int64) (OrganizationRef, bool, error) {
	org, err := s.store.ActiveOrganization(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return OrganizationRef{}, false, nil
	}
	if err != nil {
		return OrganizationRef{}, false, err
	}
	return org, true, nil
}

// SetActiveOrganization switches the user's active organization. The user must
// hold a role in it. The membership check and the write are separate statements,
// so a concurrent revoke can still land after a successful switch.
func (s *Service) SetActiveOrganization(ctx context.Context, userID, organizationID int64) error {
	if userID <= 0 || organizationID <= 0 {
		return fmt.Errorf("%w: user_id and organization_id are required", ErrInvalidInput)
	}
	ok, err := s.store.HasOrganization(ctx, userID, organizationID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d holds no role in organization %d", ErrInvalidOrganization, userID, organizationID)
	}
	return s.store.SetActiveOrganization(ctx, userID, organizationID)
}

// AssignRole grants a role to a user within an organization.
func (s *Service) AssignRole(ctx context.Context, a Assignment) error {
	if err := validateAssignment(a); err != nil {
		return err
	}
	return s.store.AssignRole(ctx, a)
}

// AssignRoleAs grants a role on behalf of callerID. Only a SUPER_ADMIN may
// grant SUPER_ADMIN; anyone else may only act inside an organization they
// hold a role in. Refusals wrap ErrUnauthorized.
func (s *Service) AssignRoleAs(ctx context.Context, callerID int64, a Assignment) error {
	if err := validateAssignment(a); err != nil {
		return err
	}
	held, err := s.ActiveRoles(ctx, callerID)
	if err != nil {
		return err
	}
	if !held.Has(RoleSuperAdmin) {
		role, err := s.store.RoleByID(ctx, a.RoleID)
		if err != nil {
			return err
		}
		if role.Name == RoleSuperAdmin {
			return fmt.Errorf("%w: only %s may grant %s", ErrUnauthorized, RoleSuperAdmin, RoleSuperAdmin)
		}
		member, err := s.store.HasOrganization(ctx, callerID, a.OrganizationID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("%w: caller holds no role in organization %d", ErrUnauthorized, a.OrganizationID)
		}
	}
	return s.store.AssignRole(ctx, a)
}

// RevokeRole removes a single assignment.
func (s *Service) RevokeRole(ctx context.Context, a Assignment) error {
	if err := validateAssignment(a); err != nil {
		return err
	}
	return s.store.RevokeRole(ctx, a)
}

// RoleIDIn returns the id of a role the user holds in organizationID, falling
// back to any role the user holds. ok is false when the user has no assignments.
func (s *Service) RoleIDIn(ctx context.Context, userID, organizationID int64) (int64, bool, error) {
	assignments, err := s.store.Assignments(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if len(assignments) == 0 {
		return 0, false, nil
	}
	for _, a := range assignments {
		if a.OrganizationID == organizationID {
			return a.RoleID, true, nil
		}
	}
	return assignments[0].RoleID, true, nil
}

func validateAssignment(a Assignment) error {
	if a.UserID <= 0 || a.OrganizationID <= 0 || a.RoleID <= 0 {
		return fmt.Errorf("%w: user_id, organization_id and role_id are required", ErrInvalidInput)
	}
	return nil
}
