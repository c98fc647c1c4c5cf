package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mapStore struct {
	users map[string]*User
	err   error
}

func (s *mapStore) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *mapStore) FindByID(_ context.Context, id string) (*User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (s *mapStore) Create(context.Context, *User) error                  { return nil }
func (s *mapStore) UpdatePassword(context.Context, string, string) error { return nil }
func (s *mapStore) UpdateLastLogin(context.Context, string, time.Time) error {
	return nil
}
func (s *mapStore) SetActive(context.Context, string, bool) error        { return nil }
func (s *mapStore) EmailExists(context.Context, string) (bool, error)    { return false, nil }
func (s *mapStore) UsernameExists(context.Context, string) (bool, error) { return false, nil }

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal")
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user id")
	}

	ctx := ContextWithPrincipal(context.Background(), NewPrincipal(&User{ID: "u1"}, "jti"))
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.TokenID != "jti" {
		t.Fatalf("unexpected principal %+v ok=%v", p, ok)
	}
	if id, ok := UserIDFromContext(ctx); !ok || id != "u1" {
		t.Fatalf("unexpected user id %q", id)
	}
}

func TestClientContext(t *testing.T) {
	if c := ClientFromContext(context.Background()); c != (ClientInfo{}) {
		t.Fatalf("expected empty client, got %+v", c)
	}
	want := ClientInfo{IP: "10.0.0.1", UserAgent: "curl/8"}
	if got := ClientFromContext(ContextWithClient(context.Background(), want)); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSanitizedDropsHash(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	u := &User{ID: "u1", PasswordHash: "secret", LastLoginAt: &ts, Role: roleFixture(RoleViewer)}
	cp := u.Sanitized()
	if cp.PasswordHash != "" {
		t.Fatal("hash survived sanitizing")
	}
	cp.Role.Permissions[0] = PermAuditView
	*cp.LastLoginAt = time.Time{}
	if u.Role.Permissions[0] == PermAuditView || u.LastLoginAt.IsZero() {
		t.Fatal("sanitized copy shares memory with the original")
	}
	if (*User)(nil).Sanitized() != nil {
		t.Fatal("nil user must sanitize to nil")
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	if got := NormalizeIdentifier("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestResolverFindByIdentifier(t *testing.T) {
	store := &mapStore{users: map[string]*User{
		"u1": {ID: "u1", Email: "alice@example.com", Username: "alice", IsActive: false},
	}}
	r := NewIdentityResolver(store)
	ctx := context.Background()

	u, err := r.FindByIdentifier(ctx, " ALICE ")
	if err != nil || u == nil || u.ID != "u1" {
		t.Fatalf("expected inactive user by username, got %+v err=%v", u, err)
	}
	if u, err := r.FindByIdentifier(ctx, "bob"); u != nil || err != nil {
		t.Fatalf("expected nil, nil for unknown identifier, got %+v %v", u, err)
	}
	if u, err := r.FindByIdentifier(ctx, "   "); u != nil || err != nil {
		t.Fatalf("expected nil, nil for blank identifier, got %+v %v", u, err)
	}
}

func TestResolverFindByIDSkipsInactive(t *testing.T) {
	store := &mapStore{users: map[string]*User{
		"on":  {ID: "on", IsActive: true},
		"off": {ID: "off", IsActive: false},
	}}
	r := NewIdentityResolver(store)
	ctx := context.Background()

	if u, _ := r.FindByID(ctx, "on"); u == nil {
		t.Fatal("expected active user")
	}
	if u, err := r.FindByID(ctx, "off"); u != nil || err != nil {
		t.Fatalf("inactive user resolved: %+v %v", u, err)
	}
	if u, err := r.FindByID(ctx, "missing"); u != nil || err != nil {
		t.Fatalf("missing user resolved: %+v %v", u, err)
	}
}

func TestResolverPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewIdentityResolver(&mapStore{err: boom})
	if _, err := r.FindByID(context.Background(), "u1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, err := r.FindByIdentifier(context.Background(), "alice"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
