// Package apperr defines the user-facing error taxonomy shared by the auth
// core and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
	"runtime/debug"
)

// Kind classifies an Error and determines its HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindConflict
	KindValidation
	KindNotFound
)

// Machine-readable reasons attached to authentication failures.
const (
	ReasonTokenMissing       = "token_missing"
	ReasonTokenInvalid       = "token_invalid"
	ReasonTokenExpired       = "token_expired"
	ReasonTokenReused        = "token_reused"
	ReasonUserNotFound       = "user_not_found"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountDeactivated = "account_deactivated"
)

// Error is an error with a message that is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
	Err     error
	Stack   []byte
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindInternal {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WithReason returns a copy of e carrying the given machine reason.
func (e *Error) WithReason(reason string) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Internal wraps an infrastructure failure. The client only ever sees
// message; err and the captured stack stay server side.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err, Stack: debug.Stack()}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == k
}

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return Internal("Internal server error", err)
}
