// Package apperrors defines the stable error taxonomy shared by all engine
// components. Transport layers map Kind to a status code; the core never
// raises bare strings.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a class of failure. The set is closed and stable.
type Kind string

// Error kinds.
const (
	KindAuthMissing         Kind = "AUTH_MISSING"
	KindAuthInvalid         Kind = "AUTH_INVALID"
	KindAuthInactive        Kind = "AUTH_INACTIVE"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindValidation          Kind = "VALIDATION"
	KindNotFound            Kind = "NOT_FOUND"
	KindBatchTooLarge       Kind = "BATCH_TOO_LARGE"
	KindBatchBackpressure   Kind = "BATCH_BACKPRESSURE"
	KindUpstreamTimeout     Kind = "UPSTREAM_TIMEOUT"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindInternal            Kind = "INTERNAL"
)

// Error is a classified engine error. RetryAfter is populated for
// RATE_LIMITED and BATCH_BACKPRESSURE kinds.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// RateLimited creates a RATE_LIMITED error carrying the retry hint.
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// Backpressure creates a BATCH_BACKPRESSURE error carrying the retry hint.
func Backpressure(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindBatchBackpressure, Message: message, RetryAfter: retryAfter}
}

// KindOf extracts the Kind from err, or KindInternal if err is not a
// classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// RetryAfterOf returns the retry hint from err, or zero if none.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
