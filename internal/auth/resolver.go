package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var _ Resolver = (*IdentityResolver)(nil)

// IdentityResolver looks users up for login and token validation.
type IdentityResolver struct {
	users UserStore
}

func NewIdentityResolver(users UserStore) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// NormalizeIdentifier lower-cases and trims an email or username.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// FindByIdentifier matches identifier against email or username. It
// returns nil without error when nothing matches. Inactive users are
// returned so login can report the deactivated state.
func (r *IdentityResolver) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, nil
	}
	u, err := r.users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by identifier: %w", err)
	}
	return u, nil
}

// FindByID loads an active user with role and permissions. Missing and
// inactive users both yield nil without error.
func (r *IdentityResolver) FindByID(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	u, err := r.users.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	if !u.IsActive {
		return nil, nil
	}
	return u, nil
}
