package activity

import (
	"context"
	"time"
)

// Entry is a new activity record. OrganizationID is nil for actions that are
// not organization-scoped.
type Entry struct {
	UserID         int64
	OrganizationID *int64
	RoleID         int64
	Activity       string
}

// View is an activity entry joined with readable user, role and organization names.
type View struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Organization string    `json:"organization"`
	Activity     string    `json:"activity"`
	Timestamp    time.Time `json:"timestamp"`
}

// Page selects a window of the trail by id. A zero Limit means no limit.
type Page struct {
	AfterID int64
	Limit   int
}

// Store persists and reads activity entries.
type Store interface {
	// AppendActivity inserts one entry and returns its id and the
	// timestamp the store assigned to it.
	AppendActivity(ctx context.Context, e Entry) (int64, time.Time, error)

	// ListActivity returns joined entries in id order. Entries whose
	// organization is null or whose user, role or organization row is
	// missing are not returned.
	ListActivity(ctx context.Context, p Page) ([]View, error)
}

// OrgID is a helper for building entries scoped to an organization.
func OrgID(id int64) *int64 {
	return &id
}
