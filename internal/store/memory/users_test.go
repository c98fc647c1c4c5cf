package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"inventra.io/internal/auth"
)

func createUser(t *testing.T, s *Store, email, username, role string) *auth.User {
	t.Helper()
	u := &auth.User{Email: email, Username: username, PasswordHash: "hash", IsActive: true, Role: &auth.Role{Name: role}}
	if err := s.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return u
}

func TestStoreCreateAndFind(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := createUser(t, s, "Alice@Example.com", "Alice", auth.RoleManager)

	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %+v", u)
	}
	if u.Role == nil || u.Role.ID != "role_manager" {
		t.Fatalf("expected resolved manager role, got %+v", u.Role)
	}

	byEmail, err := s.FindByIdentifier(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByIdentifier(email): %v", err)
	}
	byName, err := s.FindByIdentifier(ctx, "ALICE")
	if err != nil {
		t.Fatalf("FindByIdentifier(username): %v", err)
	}
	if byEmail.ID != u.ID || byName.ID != u.ID {
		t.Fatalf("lookups returned different users: %s %s", byEmail.ID, byName.ID)
	}
	if len(byEmail.Role.Permissions) == 0 {
		t.Fatal("expected role permissions to be loaded")
	}

	// Returned values are copies.
	byEmail.Role.Permissions[0] = "MUTATED"
	again, _ := s.FindByID(ctx, u.ID)
	if again.Role.Permissions[0] == "MUTATED" {
		t.Fatal("store leaked internal role slice")
	}
}

func TestStoreCreateRejectsDuplicates(t *testing.T) {
	s := NewStore()
	createUser(t, s, "alice@example.com", "alice", auth.RoleViewer)

	err := s.Create(context.Background(), &auth.User{Email: "ALICE@example.com", Username: "other", Role: &auth.Role{Name: auth.RoleViewer}})
	if !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	err = s.Create(context.Background(), &auth.User{Email: "other@example.com", Username: "Alice", Role: &auth.Role{Name: auth.RoleViewer}})
	if !errors.Is(err, auth.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatal("expected username conflict to wrap ErrConflict")
	}
}

func TestStoreCreateUnknownRole(t *testing.T) {
	s := NewStore()
	err := s.Create(context.Background(), &auth.User{Email: "a@b.c", Username: "a", Role: &auth.Role{Name: "ghost"}})
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStoreUpdates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := createUser(t, s, "bob@example.com", "bob", auth.RoleStaff)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.UpdateLastLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}
	if err := s.UpdatePassword(ctx, u.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if err := s.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	got, err := s.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Fatalf("unexpected last login: %v", got.LastLoginAt)
	}
	if got.PasswordHash != "new-hash" || got.IsActive {
		t.Fatalf("updates not applied: %+v", got)
	}

	if err := s.SetActive(ctx, "missing", true); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByID(ctx, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreExists(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	createUser(t, s, "carol@example.com", "carol", auth.RoleViewer)

	if ok, _ := s.EmailExists(ctx, " Carol@Example.com "); !ok {
		t.Fatal("expected email to exist")
	}
	if ok, _ := s.UsernameExists(ctx, "CAROL"); !ok {
		t.Fatal("expected username to exist")
	}
	if ok, _ := s.EmailExists(ctx, "dave@example.com"); ok {
		t.Fatal("unexpected email match")
	}
	if got := len(s.Users()); got != 1 {
		t.Fatalf("expected 1 user, got %d", got)
	}
	if s.Users()[0].PasswordHash != "" {
		t.Fatal("Users must return sanitized copies")
	}
}
