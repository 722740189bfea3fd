package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error classes surfaced to callers. Handlers map them to responses.
var (
	// ErrUnauthenticated covers a missing, malformed, unknown or expired
	// session and a disabled owner. Callers cannot tell these apart.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredentials is returned for every failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden means the caller is authenticated but not allowed.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is a missing resource addressed by id.
	ErrNotFound = errors.New("not found")

	// ErrConflict is an integrity conflict the caller can react to.
	ErrConflict = errors.New("conflict")

	// ErrAccountExists is an ErrConflict for an identifier that is taken.
	ErrAccountExists = fmt.Errorf("%w: an account with this email already exists", ErrConflict)

	// ErrInvitationInvalid is returned for unknown, expired, revoked and
	// already accepted invitations alike.
	ErrInvitationInvalid = errors.New("invitation is invalid or has expired")

	// ErrAlreadySeeded is returned by Seed once any account exists.
	ErrAlreadySeeded = fmt.Errorf("%w: accounts already exist", ErrConflict)
)

// ValidationError is malformed input with a message that is safe to show.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Invalid returns a ValidationError without field details.
func Invalid(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// InvalidField returns a ValidationError for a single field.
func InvalidField(field, msg string) *ValidationError {
	return &ValidationError{Message: "validation failed", Fields: map[string]string{field: msg}}
}

// Login failure reasons. They are recorded in the audit trail only.
const (
	ReasonUnknownAccount  = "unknown account"
	ReasonWrongPassword   = "wrong password"
	ReasonAccountDisabled = "account disabled"
)

// LoginError carries the precise reason a login failed. It matches
// ErrInvalidCredentials so responses never reveal Reason.
type LoginError struct {
	Reason string
}

func (e *LoginError) Error() string { return "invalid credentials: " + e.Reason }

func (e *LoginError) Is(target error) bool { return target == ErrInvalidCredentials }
