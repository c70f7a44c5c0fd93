package auth

import "time"

// Organization is a tenant under which roles are granted.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the identity record referenced by assignments and activity entries.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Role is static reference data naming a permission level.
type Role struct {
	ID   int64    `json:"id"`
	Name RoleName `json:"name"`
}

// Assignment asserts that a user holds a role within an organization.
type Assignment struct {
	UserID         int64     `json:"user_id"`
	OrganizationID int64     `json:"organization_id"`
	RoleID         int64     `json:"role_id"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// OrganizationRef is the id/name pair used by the organization switcher.
type OrganizationRef struct {
	ID   int64  `json:"organization_id"`
	Name string `json:"organization_name"`
}
