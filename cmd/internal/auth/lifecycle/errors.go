package lifecycle

import (
	"errors"
	"fmt"
)

// Failure kinds. Every *Error unwraps to exactly one of them.
var (
	ErrAccountAlreadyExists   = errors.New("account already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid refresh token")
	ErrInvalidCurrentPassword = errors.New("invalid current password")
	ErrNotFound               = errors.New("not found")
	ErrValidationFailed       = errors.New("validation failed")
	ErrUnauthenticated        = errors.New("unauthenticated")
)

// Detail texts shown to clients. Refresh failures share one text so callers
// cannot tell an unknown token from an expired or raced one.
const (
	detailInvalidCredentials     = "Invalid email or password."
	detailInvalidRefreshToken    = "The refresh token is invalid or has been revoked."
	detailInvalidCurrentPassword = "The current password is incorrect."
	detailNotFound               = "The account does not exist."
	detailUnauthenticated        = "Authentication is required."
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is a typed operation failure.
type Error struct {
	Op     string
	Kind   error
	Detail string
	Fields []FieldError
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

// ValidationError builds an ErrValidationFailed failure listing fields.
func ValidationError(op string, fields ...FieldError) *Error {
	return &Error{
		Op:     op,
		Kind:   ErrValidationFailed,
		Detail: "The request contains invalid fields.",
		Fields: fields,
	}
}

// Slug returns the stable identifier of err's kind, or "" for infrastructure errors.
func Slug(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountAlreadyExists):
		return "account-already-exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid-credentials"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid-refresh-token"
	case errors.Is(err, ErrInvalidCurrentPassword):
		return "invalid-current-password"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrValidationFailed):
		return "validation-failed"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return ""
	}
}

func fail(op string, kind error, detail string) *Error {
	return &Error{Op: op, Kind: kind, Detail: detail}
}
