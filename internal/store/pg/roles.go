package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/maulvi-zm/trackure/internal/auth"
)

var (
	_ auth.RoleStore = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errDBUnavailable
	}
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, is_active, created_at
		from users
		where lower(email) = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) RoleByID(ctx context.Context, roleID int64) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errDBUnavailable
	}
	var r auth.Role
	err := s.db.QueryRowContext(ctx, `select id, name from roles where id = $1`, roleID).Scan(&r.ID, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	return r, nil
}

func (s *Store) Assignments(ctx context.Context, userID int64) ([]auth.Assignment, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, organization_id, role_id, created_at
		from user_organization_roles
		where user_id = $1
		order by created_at, organization_id, role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Assignment
	for rows.Next() {
		var a auth.Assignment
		if err := rows.Scan(&a.UserID, &a.OrganizationID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) RoleNames(ctx context.Context, userID int64) ([]auth.RoleName, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct r.name
		from user_organization_roles uor
		join roles r on r.id = uor.role_id
		where uor.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.RoleName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result = append(result, auth.RoleName(name))
	}
	return result, rows.Err()
}

func (s *Store) UserOrganizations(ctx context.Context, userID int64) ([]auth.OrganizationRef, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct o.id, o.name
		from user_organization_roles uor
		join organizations o on o.id = uor.organization_id
		where uor.user_id = $1
		order by o.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.OrganizationRef
	for rows.Next() {
		var ref auth.OrganizationRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

func (s *Store) HasOrganization(ctx context.Context, userID, organizationID int64) (bool, error) {
	if s.db == nil {
		return false, errDBUnavailable
	}
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from user_organization_roles
			where user_id = $1 and organization_id = $2
		)
	`, userID, organizationID).Scan(&ok)
	return ok, err
}

func (s *Store) ActiveOrganization(ctx context.Context, userID int64) (auth.OrganizationRef, error) {
	if s.db == nil {
		return auth.OrganizationRef{}, errDBUnavailable
	}
	var ref auth.OrganizationRef
	err := s.db.QueryRowContext(ctx, `
		select o.id, o.name
		from active_organization ao
		join organizations o on o.id = ao.organization_id
		where ao.user_id = $1
	`, userID).Scan(&ref.ID, &ref.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.OrganizationRef{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.OrganizationRef{}, err
	}
	return ref, nil
}

func (s *Store) AssignRole(ctx context.Context, a auth.Assignment) error {
	if s.db == nil {
		return errDBUnavailable
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_organization_roles (user_id, organization_id, role_id)
		values ($1, $2, $3)
	`, a.UserID, a.OrganizationID, a.RoleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) RevokeRole(ctx context.Context, a auth.Assignment) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		delete from user_organization_roles
		where user_id = $1 and organization_id = $2 and role_id = $3
	`, a.UserID, a.OrganizationID, a.RoleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SetActiveOrganization upserts the single active row for the user. Concurrent
// calls serialize on the primary key and the last writer wins.
func (s *Store) SetActiveOrganization(ctx context.Context, userID, organizationID int64) error {
	if s.db == nil {
		return errDBUnavailable
	}
	_, err := s.db.ExecContext(ctx, `
		insert into active_organization (user_id, organization_id, updated_at)
		values ($1, $2, now())
		on conflict (user_id) do update
		set organization_id = excluded.organization_id, updated_at = excluded.updated_at
	`, userID, organizationID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}
