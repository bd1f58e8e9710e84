// Package apperr defines the error taxonomy shared by the service and HTTP
// layers.  Business logic returns *Error values tagged with a Kind; the
// handler package decodes the kind once into an HTTP status so status code
// literals never leak into the service layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.  The string value doubles as the machine
// readable "error" field in JSON responses.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindBanned           Kind = "BANNED"
	KindAlreadyCheckedIn Kind = "ALREADY_CHECKED_IN"
	KindConflict         Kind = "CONFLICT"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindForbidden        Kind = "FORBIDDEN"
	KindInternal         Kind = "INTERNAL"
)

// Error is a tagged error.  Details carries structured context for the
// caller (e.g. the active check-in for ALREADY_CHECKED_IN) and is merged
// into the response body.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// With attaches a detail field and returns the same error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int { return StatusFor(e.Kind) }

// StatusFor maps a kind to its HTTP status code.
func StatusFor(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBanned, KindForbidden:
		return http.StatusForbidden
	case KindAlreadyCheckedIn, KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func Banned(format string, args ...any) *Error     { return newf(KindBanned, format, args...) }
func Conflict(format string, args ...any) *Error   { return newf(KindConflict, format, args...) }
func Forbidden(format string, args ...any) *Error  { return newf(KindForbidden, format, args...) }

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

func AlreadyCheckedIn(format string, args ...any) *Error {
	return newf(KindAlreadyCheckedIn, format, args...)
}

// Internal wraps an unexpected failure.  The cause is kept for logging and
// never rendered to clients.
func Internal(cause error, msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// Wrap tags cause with kind while preserving it for errors.Is checks.
func Wrap(k Kind, cause error, msg string) *Error {
	return &Error{Kind: k, Message: msg, cause: cause}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf reports the kind of err, INTERNAL for untagged errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}
