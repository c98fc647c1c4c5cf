package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"inventra.io/internal/audit"
	"inventra.io/internal/auth"
)

var userColumns = []string{
	"id", "email", "username", "password_hash", "is_active", "last_login_at",
	"created_at", "updated_at", "id", "name", "description",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestFindByIdentifierLoadsRoleAndPermissions(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("from users u.*join roles r.*lower\\(u.email\\) = \\$1 or lower\\(u.username\\) = \\$1").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "alice@example.com", "alice", "hash", true, nil, created, created, "role_manager", "manager", "Managers"))
	mock.ExpectQuery("select permission_key from role_permissions").
		WithArgs("role_manager").
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}).AddRow("INVENTORY_VIEW").AddRow("USERS_VIEW"))

	u, err := store.FindByIdentifier(context.Background(), "  Alice@Example.com ")
	if err != nil {
		t.Fatalf("FindByIdentifier: %v", err)
	}
	if u.ID != "u1" || u.Role == nil || u.Role.Name != "manager" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.LastLoginAt != nil {
		t.Fatalf("expected nil last login, got %v", u.LastLoginAt)
	}
	if len(u.Role.Permissions) != 2 || u.Role.Permissions[1] != auth.PermUsersView {
		t.Fatalf("unexpected permissions: %v", u.Role.Permissions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from users u").WithArgs("missing").WillReturnRows(sqlmock.NewRows(userColumns))

	if _, err := store.FindByID(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateResolvesRole(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "bob@example.com", "bob", "hash", true, "viewer").
		WillReturnRows(sqlmock.NewRows([]string{"role_id", "created_at", "updated_at"}).AddRow("role_viewer", now, now))
	mock.ExpectQuery("select id, name, coalesce\\(description, ''\\) from roles where id = \\$1").
		WithArgs("role_viewer").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description"}).AddRow("role_viewer", "viewer", ""))
	mock.ExpectQuery("select permission_key from role_permissions").
		WithArgs("role_viewer").
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}).AddRow("INVENTORY_VIEW"))

	u := &auth.User{Email: "Bob@Example.com", Username: "Bob", PasswordHash: "hash", IsActive: true, Role: &auth.Role{Name: "viewer"}}
	if err := store.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" || u.Email != "bob@example.com" || u.Role.ID != "role_viewer" {
		t.Fatalf("unexpected user after create: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUnknownRole(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("insert into users").WillReturnRows(sqlmock.NewRows([]string{"role_id", "created_at", "updated_at"}))

	err := store.Create(context.Background(), &auth.User{Email: "a@b.c", Username: "a", Role: &auth.Role{Name: "ghost"}})
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateMapsUniqueViolations(t *testing.T) {
	cases := map[string]error{
		"users_email_key":    auth.ErrEmailTaken,
		"users_username_key": auth.ErrUsernameTaken,
	}
	for constraint, want := range cases {
		store, mock := newMock(t)
		mock.ExpectQuery("insert into users").
			WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraint})

		err := store.Create(context.Background(), &auth.User{Email: "a@b.c", Username: "a", Role: &auth.Role{Name: "viewer"}})
		if !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", constraint, want, err)
		}
	}
}

func TestSetActiveMissingUser(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("update users set is_active").WithArgs("ghost", false).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.SetActive(context.Background(), "ghost", false); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateLastLogin(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("update users set last_login_at").WithArgs("u1", at).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateLastLogin(context.Background(), "u1", at); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExistsNormalizes(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select exists\\(select 1 from users where lower\\(email\\)").
		WithArgs("carol@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.EmailExists(context.Background(), " CAROL@example.com")
	if err != nil || !ok {
		t.Fatalf("expected email to exist, got %v %v", ok, err)
	}
}

func TestAppendAuditEntry(t *testing.T) {
	store, mock := newMock(t)
	at := time.Now().UTC()
	mock.ExpectExec("insert into audit_logs").
		WithArgs("a1", at, audit.ActionLogin, "u1", nil, "user", "u1", "10.0.0.1", nil, []byte(`{"k":"v"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Append(context.Background(), audit.Entry{
		ID: "a1", OccurredAt: at, Action: audit.ActionLogin,
		UserID: "u1", EntityType: "user", EntityID: "u1", IP: "10.0.0.1",
		Details: map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByIDDropsUnknownPermissions(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("from users u").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "alice@example.com", "alice", "hash", true, nil, created, created, "role_staff", "staff", "Staff"))
	mock.ExpectQuery("select permission_key from role_permissions").
		WithArgs("role_staff").
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}).AddRow("INVENTORY_VIEW").AddRow("SUPERUSER"))

	u, err := store.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(u.Role.Permissions) != 1 || u.Role.Permissions[0] != auth.PermInventoryView {
		t.Fatalf("unknown permission kept: %v", u.Role.Permissions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
