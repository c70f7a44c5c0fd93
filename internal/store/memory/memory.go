// Package memory is an in-process implementation of the role and activity
// stores. It mirrors the Postgres join semantics and backs local runs without
// a database as well as handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maulvi-zm/trackure/internal/activity"
	"github.com/maulvi-zm/trackure/internal/auth"
)

var (
	_ auth.RoleStore = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
	_ activity.Store = (*Store)(nil)
)

type activityRow struct {
	id        int64
	entry     activity.Entry
	createdAt time.Time
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	nextID      int64
	orgs        map[int64]auth.Organization
	users       map[int64]auth.User
	roles       map[int64]auth.Role
	assignments []auth.Assignment
	active      map[int64]int64
	logs        []activityRow

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orgs:   make(map[int64]auth.Organization),
		users:  make(map[int64]auth.User),
		roles:  make(map[int64]auth.Role),
		active: make(map[int64]int64),
		now:    time.Now,
	}
}

// SeedBuiltinRoles inserts the builtin roles with ids 1..n in declaration order
// and returns them keyed by name.
func (s *Store) SeedBuiltinRoles() map[auth.RoleName]auth.Role {
	out := make(map[auth.RoleName]auth.Role, len(auth.BuiltinRoles))
	for _, name := range auth.BuiltinRoles {
		out[name] = s.AddRole(name)
	}
	return out
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddOrganization inserts an organization and returns it.
func (s *Store) AddOrganization(name string) auth.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	org := auth.Organization{ID: s.id(), Name: name, CreatedAt: s.now().UTC()}
	s.orgs[org.ID] = org
	return org
}

// AddUser inserts an active user and returns it.
func (s *Store) AddUser(email string) auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := auth.User{ID: s.id(), Email: strings.ToLower(email), IsActive: true, CreatedAt: s.now().UTC()}
	s.users[u.ID] = u
	return u
}

// AddRole inserts a role and returns it.
func (s *Store) AddRole(name auth.RoleName) auth.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := auth.Role{ID: s.id(), Name: name}
	s.roles[r.ID] = r
	return r
}

// SetUserActive toggles the user's active flag.
func (s *Store) SetUserActive(userID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsActive = active
		s.users[userID] = u
	}
}

// DeleteOrganization removes the organization row only, leaving references dangling.
func (s *Store) DeleteOrganization(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orgs, id)
}

// DeleteUser removes the user row only, leaving references dangling.
func (s *Store) DeleteUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// DeleteRole removes the role row only, leaving references dangling.
func (s *Store) DeleteRole(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
}

func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) RoleByID(_ context.Context, roleID int64) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, nil
}

func (s *Store) Assignments(_ context.Context, userID int64) ([]auth.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Assignment
	for _, a := range s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) RoleNames(_ context.Context, userID int64) ([]auth.RoleName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[auth.RoleName]struct{})
	var out []auth.RoleName
	for _, a := range s.assignments {
		if a.UserID != userID {
			continue
		}
		role, ok := s.roles[a.RoleID]
		if !ok {
			continue
		}
		if _, dup := seen[role.Name]; dup {
			continue
		}
		seen[role.Name] = struct{}{}
		out = append(out, role.Name)
	}
	return out, nil
}

func (s *Store) UserOrganizations(_ context.Context, userID int64) ([]auth.OrganizationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []auth.OrganizationRef
	for _, a := range s.assignments {
		if a.UserID != userID {
			continue
		}
		org, ok := s.orgs[a.OrganizationID]
		if !ok {
			continue
		}
		if _, dup := seen[org.ID]; dup {
			continue
		}
		seen[org.ID] = struct{}{}
		out = append(out, auth.OrganizationRef{ID: org.ID, Name: org.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) HasOrganization(_ context.Context, userID, organizationID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assignments {
		if a.UserID == userID && a.OrganizationID == organizationID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ActiveOrganization(_ context.Context, userID int64) (auth.OrganizationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgID, ok := s.active[userID]
	if !ok {
		return auth.OrganizationRef{}, auth.ErrNotFound
	}
	org, ok := s.orgs[orgID]
	if !ok {
		return auth.OrganizationRef{}, auth.ErrNotFound
	}
	return auth.OrganizationRef{ID: org.ID, Name: org.Name}, nil
}

func (s *Store) AssignRole(_ context.Context, a auth.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.UserID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.orgs[a.OrganizationID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.roles[a.RoleID]; !ok {
		return auth.ErrNotFound
	}
	for _, existing := range s.assignments {
		if sameTriple(existing, a) {
			return auth.ErrConflict
		}
	}
	a.CreatedAt = s.now().UTC()
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *Store) RevokeRole(_ context.Context, a auth.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.assignments {
		if sameTriple(existing, a) {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *Store) SetActiveOrganization(_ context.Context, userID, organizationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[userID] = organizationID
	return nil
}

func (s *Store) AppendActivity(_ context.Context, e activity.Entry) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.OrganizationID != nil {
		org := *e.OrganizationID
		e.OrganizationID = &org
	}
	row := activityRow{id: s.id(), entry: e, createdAt: s.now().UTC()}
	s.logs = append(s.logs, row)
	return row.id, row.createdAt, nil
}

func (s *Store) ListActivity(_ context.Context, p activity.Page) ([]activity.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []activity.View
	for _, row := range s.logs {
		if row.id <= p.AfterID {
			continue
		}
		if row.entry.OrganizationID == nil {
			continue
		}
		user, ok := s.users[row.entry.UserID]
		if !ok {
			continue
		}
		role, ok := s.roles[row.entry.RoleID]
		if !ok {
			continue
		}
		org, ok := s.orgs[*row.entry.OrganizationID]
		if !ok {
			continue
		}
		out = append(out, activity.View{
			ID:           row.id,
			UserID:       user.ID,
			Email:        user.Email,
			Role:         string(role.Name),
			Organization: org.Name,
			Activity:     row.entry.Activity,
			Timestamp:    row.createdAt,
		})
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func sameTriple(a, b auth.Assignment) bool {
	return a.UserID == b.UserID && a.OrganizationID == b.OrganizationID && a.RoleID == b.RoleID
}
