// Package apperr defines the closed error taxonomy for the auth core.
// Every failure leaving the service layer is one of these kinds; the HTTP
// layer maps kinds to statuses exhaustively.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindConflict
	KindNotFound
	KindInternal
)

// String returns the wire identifier for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuthentication:
		return "authentication_error"
	case KindConflict:
		return "conflict_error"
	case KindNotFound:
		return "not_found_error"
	default:
		return "internal_error"
	}
}

// Status maps a kind to its HTTP status.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Title returns the human-readable summary for the kind.
func (k Kind) Title() string {
	switch k {
	case KindValidation:
		return "Validation Failed"
	case KindAuthentication:
		return "Authentication Failed"
	case KindConflict:
		return "Conflict"
	case KindNotFound:
		return "Not Found"
	default:
		return "Internal Server Error"
	}
}

// Error is the classified failure carried across the service boundary.
// Fields holds per-field validation messages and is set only for
// KindValidation.
type Error struct {
	Kind   Kind
	Detail string
	Fields map[string][]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Validation builds a 422 error with an optional field->messages map.
func Validation(detail string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Detail: detail, Fields: fields}
}

// Authentication builds the single uninformative 401 error. The detail is
// deliberately identical for wrong passwords, unknown accounts, and
// invalid, expired, or replayed tokens.
func Authentication() *Error {
	return &Error{Kind: KindAuthentication, Detail: "Invalid credentials or token."}
}

// Conflict builds a 409 error.
func Conflict(detail string) *Error {
	return &Error{Kind: KindConflict, Detail: detail}
}

// NotFound builds a 404 error.
func NotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

// Internal wraps an unexpected failure. The cause is kept for logging but
// never rendered to the caller.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Detail: "An unexpected error occurred.", cause: cause}
}

// From returns err as an *Error, wrapping unclassified failures as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
