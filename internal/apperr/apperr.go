package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable failure category exposed to callers.
// The transport layer maps kinds to status codes; services only choose kinds.
type Kind string

const (
	KindValidation      Kind = "validation_failed"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnavailable     Kind = "store_unavailable"
	KindInternal        Kind = "internal"
)

// Error carries a failure kind, a human-readable message, and an optional
// wrapped cause. The cause is for logs and development mode only and must
// never reach a production client.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation is shorthand for a ValidationFailed error naming the violated
// constraint.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// KindOf extracts the failure kind from an error chain, defaulting to
// KindInternal for errors that did not originate in a service.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf extracts the client-safe message from an error chain.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
