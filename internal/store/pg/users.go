package pg

import (
	"context"
	"strings"

	"worktrack.org/internal/access"
	"worktrack.org/internal/auth"
	"worktrack.org/internal/ids"
	"worktrack.org/internal/tracker"
)

var (
	_ auth.UserStore       = (*Store)(nil)
	_ auth.PasswordHistory = (*Store)(nil)
)

const userColumnsSQL = `u.id, u.email, u.first_name, u.last_name, u.role, u.active, u.password_hash, u.created_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role, &u.Active, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	return u, nil
}

// CreateUser inserts the user and seeds the password history in one transaction.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if err := s.ready(); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		insert into users (id, email, first_name, last_name, role, active, password_hash)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, u.ID, u.Email, u.FirstName, u.LastName, string(u.Role), u.Active, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return translate(err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into password_history (user_id, password_hash) values ($1, $2)
	`, u.ID, u.PasswordHash); err != nil {
		return translate(err)
	}
	return tx.Commit()
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	if err := s.ready(); err != nil {
		return auth.User{}, err
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumnsSQL+` from users u where u.id = $1`, id))
	if err != nil {
		return auth.User{}, translate(err)
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	if err := s.ready(); err != nil {
		return auth.User{}, err
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumnsSQL+` from users u where u.email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return auth.User{}, translate(err)
	}
	return u, nil
}

// UpdatePassword stores the new digest and appends it to the history.
func (s *Store) UpdatePassword(ctx context.Context, userID, hash string) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, userID, hash)
	if err != nil {
		return translate(err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `insert into password_history (user_id, password_hash) values ($1, $2)`, userID, hash); err != nil {
		return translate(err)
	}
	return tx.Commit()
}

func (s *Store) SetRole(ctx context.Context, userID string, role auth.Role) error {
	if err := s.ready(); err != nil {
		return err
	}
	if !role.Valid() {
		return auth.ErrInvalidRole
	}
	res, err := s.db.ExecContext(ctx, `update users set role = $2, updated_at = now() where id = $1`, userID, string(role))
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `update users set active = $2, updated_at = now() where id = $1`, userID, active)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *Store) UpdateName(ctx context.Context, userID, first, last string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `update users set first_name = $2, last_name = $3, updated_at = now() where id = $1`, userID, first, last)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *Store) RecentPasswordHashes(ctx context.Context, userID string, limit int) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select password_hash
		from password_history
		where user_id = $1
		order by created_at desc, id desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (s *Store) ListUsers(ctx context.Context, scope access.Scope, page tracker.Page) ([]auth.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var q query
	q.where(scopeCondition(&q, scope, userColumns))
	stmt := `select ` + userColumnsSQL + ` from users u` + q.clause() + ` order by u.id` + q.page(page.Limit, page.Offset)
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IsTeamMember reports team membership.
func (s *Store) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from team_members where team_id = $1 and user_id = $2)
	`, teamID, userID).Scan(&ok)
	return ok, err
}

// ManagesUser reports whether userID belongs to a team managed by managerID.
func (s *Store) ManagesUser(ctx context.Context, managerID, userID string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from team_members m
			join teams t on t.id = m.team_id
			where t.manager_id = $1 and m.user_id = $2
		)
	`, managerID, userID).Scan(&ok)
	return ok, err
}
