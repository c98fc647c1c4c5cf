package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrInvalidTTL   = errors.New("auth: invalid ttl")
	ErrPoolClosed   = errors.New("auth: hashing pool closed")

	ErrEmailTaken    = fmt.Errorf("%w: email", ErrConflict)
	ErrUsernameTaken = fmt.Errorf("%w: username", ErrConflict)
)

// Client-facing messages. Unknown identifier and wrong password share
// MsgInvalidCredentials.
const (
	MsgInvalidCredentials = "Invalid credentials provided"
	MsgAccountDeactivated = "Your account is deactivated"
	MsgEmailTaken         = "Email address is already registered"
	MsgUsernameTaken      = "Username is already taken"
	MsgTokenMissing       = "Authentication token is required"
	MsgTokenInvalid       = "Invalid or malformed token"
	MsgTokenExpired       = "Token has expired"
	MsgTokenReused        = "Refresh token has already been used"
	MsgUserUnavailable    = "User not found or inactive"
	MsgForbidden          = "Forbidden"
)
