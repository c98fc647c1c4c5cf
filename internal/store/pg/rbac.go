package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"inventra.io/internal/auth"
	"inventra.io/internal/obs"
)

const (
	pgErrUniqueViolation = "23505"

	constraintUsersEmail    = "users_email_key"
	constraintUsersUsername = "users_username_key"
)

// rolePermissions loads the permission tags of a role. Tags outside the
// catalog are dropped so a stray seed row never grants an unknown capability.
func (s *Store) rolePermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select permission_key
		from role_permissions
		where role_id = $1
		order by permission_key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		perm := auth.Permission(key)
		if !perm.Valid() {
			obs.Logger().WarnContext(ctx, "ignoring unknown permission", "role_id", roleID, "permission", key)
			continue
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// uniqueViolation maps a 23505 error on the users table to the matching
// conflict sentinel. It returns nil for any other error.
func uniqueViolation(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok || pgErr.Code != pgErrUniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, constraintUsersUsername):
		return auth.ErrUsernameTaken
	case strings.Contains(pgErr.ConstraintName, constraintUsersEmail):
		return auth.ErrEmailTaken
	default:
		return auth.ErrConflict
	}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
