package auth

import (
	"context"
	"time"
)

// UserStore is the persistence collaborator for accounts. Lookups return
// users regardless of their active flag, with role and permissions loaded,
// or ErrNotFound.
type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// Create inserts u, assigning ID and timestamps, and resolves u.Role by
	// name. Unknown roles yield ErrInvalidInput; duplicates ErrEmailTaken
	// or ErrUsernameTaken.
	Create(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	SetActive(ctx context.Context, userID string, active bool) error
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Resolver maps identifiers and token subjects to users.
type Resolver interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

// PasswordHasher is implemented by *Hasher.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encoded string) bool
	NeedsRehash(encoded string) bool
}

// AuditRecorder receives security events. Errors are logged by the caller
// and never fail the operation that produced the event.
type AuditRecorder interface {
	RecordLogin(ctx context.Context, userID string, client ClientInfo) error
	RecordLogout(ctx context.Context, userID string, client ClientInfo) error
	RecordUserCreated(ctx context.Context, ev UserCreatedEvent) error
	RecordStatusChange(ctx context.Context, userID, actorUserID string, active bool, client ClientInfo) error
}

// UsedTokenSet remembers refresh token IDs that were already exchanged.
// MarkUsed returns true only for the first call with a given id.
type UsedTokenSet interface {
	MarkUsed(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
}

type nopAudit struct{}

func (nopAudit) RecordLogin(context.Context, string, ClientInfo) error  { return nil }
func (nopAudit) RecordLogout(context.Context, string, ClientInfo) error { return nil }
func (nopAudit) RecordUserCreated(context.Context, UserCreatedEvent) error {
	return nil
}
func (nopAudit) RecordStatusChange(context.Context, string, string, bool, ClientInfo) error {
	return nil
}
