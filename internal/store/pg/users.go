package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventra.io/internal/auth"
	"inventra.io/internal/ids"
)

const selectUser = `
	select u.id, u.email, u.username, u.password_hash, u.is_active, u.last_login_at,
	       u.created_at, u.updated_at, r.id, r.name, coalesce(r.description, '')
	from users u
	join roles r on r.id = u.role_id
`

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	row := s.db.QueryRowContext(ctx, selectUser+`
	where lower(u.email) = $1 or lower(u.username) = $1
	limit 1
	`, identifier)
	return s.scanUser(ctx, row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, selectUser+`
	where u.id = $1
	`, id)
	return s.scanUser(ctx, row)
}

func (s *Store) scanUser(ctx context.Context, row *sql.Row) (*auth.User, error) {
	var (
		u         auth.User
		role      auth.Role
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsActive, &lastLogin,
		&u.CreatedAt, &u.UpdatedAt, &role.ID, &role.Name, &role.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		ts := lastLogin.Time.UTC()
		u.LastLoginAt = &ts
	}
	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	role.Permissions = perms
	u.Role = &role
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	if u.Role == nil || strings.TrimSpace(u.Role.Name) == "" {
		return fmt.Errorf("%w: role is required", auth.ErrInvalidInput)
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))

	var roleID string
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, username, password_hash, is_active, role_id)
		select $1, $2, $3, $4, $5, r.id
		from roles r
		where r.name = $6
		returning role_id, created_at, updated_at
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.IsActive, strings.ToLower(u.Role.Name))
	if err := row.Scan(&roleID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: unknown role %s", auth.ErrInvalidInput, u.Role.Name)
		}
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return err
	}

	var role auth.Role
	if err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description, '') from roles where id = $1
	`, roleID).Scan(&role.ID, &role.Name, &role.Description); err != nil {
		return fmt.Errorf("load role: %w", err)
	}
	perms, err := s.rolePermissions(ctx, roleID)
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}
	role.Permissions = perms
	u.Role = &role
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.updateUser(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, userID, passwordHash)
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.updateUser(ctx, `update users set last_login_at = $2 where id = $1`, userID, at.UTC())
}

func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	return s.updateUser(ctx, `update users set is_active = $2, updated_at = now() where id = $1`, userID, active)
}

func (s *Store) updateUser(ctx context.Context, query, userID string, value any) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, query, userID, value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `select exists(select 1 from users where lower(email) = $1)`, email)
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `select exists(select 1 from users where lower(username) = $1)`, username)
}

func (s *Store) exists(ctx context.Context, query, value string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(value))).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
