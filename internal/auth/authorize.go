package auth

import "strings"

// Principal is the authenticated caller of a request.
type Principal struct {
	User        *User
	TokenID     string
	Permissions map[Permission]struct{}
}

// NewPrincipal builds a principal from a loaded user. A user without a
// role gets no permissions.
func NewPrincipal(user *User, tokenID string) Principal {
	set := make(map[Permission]struct{})
	if user != nil && user.Role != nil {
		for _, p := range user.Role.Permissions {
			set[p] = struct{}{}
		}
	}
	return Principal{User: user, TokenID: tokenID, Permissions: set}
}

// UserID returns the principal's user id.
func (p Principal) UserID() string {
	if p.User == nil {
		return ""
	}
	return p.User.ID
}

// HasPermission reports whether the principal's role grants perm.
func (p Principal) HasPermission(perm Permission) bool {
	_, ok := p.Permissions[perm]
	return ok
}

// HasRole reports whether the principal's role is one of roles.
func (p Principal) HasRole(roles ...string) bool {
	name := p.User.RoleName()
	if name == "" {
		return false
	}
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r), name) {
			return true
		}
	}
	return false
}

// MissingPermissionMessage is the 403 message for a denied permission check.
func MissingPermissionMessage(perm Permission) string {
	return "Missing required permission: " + perm.HumanReadable()
}
