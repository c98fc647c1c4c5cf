package auth

import "time"

// User is an account able to sign in. PasswordHash never leaves the
// process: it is excluded from JSON and stripped by Sanitized.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	Role         *Role      `json:"role,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Sanitized returns a deep copy of u without the password hash.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.PasswordHash = ""
	if u.LastLoginAt != nil {
		ts := *u.LastLoginAt
		cp.LastLoginAt = &ts
	}
	if u.Role != nil {
		role := *u.Role
		role.Permissions = append([]Permission(nil), u.Role.Permissions...)
		cp.Role = &role
	}
	return &cp
}

// RoleName returns the name of the user's role or "" when none is attached.
func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// Role groups permissions. A user owns exactly one role.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
}

// NewUser is the registration input.
type NewUser struct {
	Email    string
	Username string
	Password string
	Role     string
}

// ClientInfo describes the caller of an operation for audit purposes.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// UserCreatedEvent is emitted after a successful registration.
type UserCreatedEvent struct {
	UserID      string
	Email       string
	Username    string
	ActorUserID string
	Client      ClientInfo
}

// Session is the outcome of a login or refresh.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *User
}
