// Package apierror defines the error taxonomy surfaced at the HTTP boundary.
// Hooks and handlers return *Error values; everything else is mapped by From.
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hongminglow/contacts-be/internal/storage"
)

// Error carries the HTTP status a failure should be reported with.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a body or parameter that does not match its schema.
func Validation(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports missing or bad credentials.
func Unauthenticated(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

// Forbidden reports an ACL denial.
func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Message: message}
}

// NotFound reports a missing singleton resource.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

// Conflict reports a violated uniqueness constraint.
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Message: message}
}

// MethodNotAllowed reports a disabled or unknown operation.
func MethodNotAllowed(message string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Message: message}
}

// Upstream wraps a document store failure.
func Upstream(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// From maps any error onto the taxonomy. Storage sentinels become 404/409,
// unknown errors become Upstream.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Message: "not found", Err: err}
	case errors.Is(err, storage.ErrAlreadyExists):
		return &Error{Status: http.StatusConflict, Message: "already exists", Err: err}
	}
	return Upstream(err)
}
