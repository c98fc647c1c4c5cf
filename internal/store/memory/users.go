// Package memory provides in-process collaborators used by tests and by
// the API when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"inventra.io/internal/auth"
	"inventra.io/internal/ids"
)

var _ auth.UserStore = (*Store)(nil)

type userRecord struct {
	user   auth.User
	roleID string
}

// Store keeps users and roles in maps guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	users map[string]*userRecord
	roles map[string]auth.Role // by id
	now   func() time.Time
}

// NewStore returns a store preloaded with the built-in roles.
func NewStore() *Store {
	s := &Store{
		users: make(map[string]*userRecord),
		roles: make(map[string]auth.Role),
		now:   time.Now,
	}
	for _, r := range auth.BuiltinRoles() {
		s.roles[r.ID] = r
	}
	return s
}

// PutRole adds or replaces a role.
func (s *Store) PutRole(role auth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	role.Permissions = append([]auth.Permission(nil), role.Permissions...)
	s.roles[role.ID] = role
}

func (s *Store) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if rec.user.Email == identifier || rec.user.Username == identifier {
			return s.hydrate(rec), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *Store) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return s.hydrate(rec), nil
}

func (s *Store) Create(_ context.Context, u *auth.User) error {
	if u.Role == nil || u.Role.Name == "" {
		return fmt.Errorf("%w: role is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roleByName(u.Role.Name)
	if !ok {
		return fmt.Errorf("%w: unknown role %s", auth.ErrInvalidInput, u.Role.Name)
	}
	email := strings.ToLower(u.Email)
	username := strings.ToLower(u.Username)
	for _, rec := range s.users {
		if rec.user.Email == email {
			return auth.ErrEmailTaken
		}
		if rec.user.Username == username {
			return auth.ErrUsernameTaken
		}
	}

	now := s.now().UTC()
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = email
	u.Username = username
	u.CreatedAt = now
	u.UpdatedAt = now

	stored := *u
	stored.Role = nil
	s.users[u.ID] = &userRecord{user: stored, roleID: role.ID}

	cp := role
	cp.Permissions = append([]auth.Permission(nil), role.Permissions...)
	u.Role = &cp
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	return s.mutate(userID, func(u *auth.User) {
		u.PasswordHash = passwordHash
	})
}

func (s *Store) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return s.mutate(userID, func(u *auth.User) {
		ts := at.UTC()
		u.LastLoginAt = &ts
	})
}

func (s *Store) SetActive(_ context.Context, userID string, active bool) error {
	return s.mutate(userID, func(u *auth.User) {
		u.IsActive = active
	})
}

func (s *Store) EmailExists(_ context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if rec.user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if rec.user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// Users returns sanitized copies of all users ordered by creation.
func (s *Store) Users() []*auth.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, s.hydrate(rec).Sanitized())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) mutate(userID string, fn func(u *auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	fn(&rec.user)
	rec.user.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) roleByName(name string) (auth.Role, bool) {
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return auth.Role{}, false
}

// hydrate returns a copy of rec with its role attached. Callers hold s.mu.
func (s *Store) hydrate(rec *userRecord) *auth.User {
	u := rec.user
	if u.LastLoginAt != nil {
		ts := *u.LastLoginAt
		u.LastLoginAt = &ts
	}
	if role, ok := s.roles[rec.roleID]; ok {
		role.Permissions = append([]auth.Permission(nil), role.Permissions...)
		u.Role = &role
	}
	return &u
}
