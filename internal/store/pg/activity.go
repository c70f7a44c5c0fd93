package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/maulvi-zm/trackure/internal/activity"
)

var _ activity.Store = (*Store)(nil)

func (s *Store) AppendActivity(ctx context.Context, e activity.Entry) (int64, time.Time, error) {
	if s.db == nil {
		return 0, time.Time{}, errDBUnavailable
	}
	var org sql.NullInt64
	if e.OrganizationID != nil {
		org = sql.NullInt64{Int64: *e.OrganizationID, Valid: true}
	}
	var (
		id        int64
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		insert into user_activity_logs (user_id, organization_id, role_id, activity)
		values ($1, $2, $3, $4)
		returning id, created_at
	`, e.UserID, org, e.RoleID, e.Activity).Scan(&id, &createdAt)
	return id, createdAt, err
}

// ListActivity inner-joins users, roles and organizations, so entries without
// an organization or with a dangling reference are skipped.
func (s *Store) ListActivity(ctx context.Context, p activity.Page) ([]activity.View, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var q strings.Builder
	q.WriteString(`
		select l.id, u.id, u.email, r.name, o.name, l.activity, l.created_at
		from user_activity_logs l
		join users u on u.id = l.user_id
		join roles r on r.id = l.role_id
		join organizations o on o.id = l.organization_id
		where l.id > $1
		order by l.id`)
	args := []any{p.AfterID}
	if p.Limit > 0 {
		q.WriteString(`
		limit $2`)
		args = append(args, p.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []activity.View
	for rows.Next() {
		var v activity.View
		if err := rows.Scan(&v.ID, &v.UserID, &v.Email, &v.Role, &v.Organization, &v.Activity, &v.Timestamp); err != nil {
			return nil, err
		}
		v.Timestamp = v.Timestamp.UTC()
		result = append(result, v)
	}
	return result, rows.Err()
}
