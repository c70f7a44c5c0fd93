package auth

import "context"

// RoleStore describes the persistence operations the authorization service needs.
type RoleStore interface {
	RoleByID(ctx context.Context, roleID int64) (Role, error)
	Assignments(ctx context.Context, userID int64) ([]Assignment, error)
	RoleNames(ctx context.Context, userID int64) ([]RoleName, error)
	UserOrganizations(ctx context.Context, userID int64) ([]OrganizationRef, error)
	HasOrganization(ctx context.Context, userID, organizationID int64) (bool, error)

	// ActiveOrganization returns ErrNotFound when no row exists or the row
	// points at an organization that no longer exists.
	ActiveOrganization(ctx context.Context, userID int64) (OrganizationRef, error)

	AssignRole(ctx context.Context, a Assignment) error
	RevokeRole(ctx context.Context, a Assignment) error
	SetActiveOrganization(ctx context.Context, userID, organizationID int64) error
}

// UserStore resolves verified token subjects to local users.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
}
