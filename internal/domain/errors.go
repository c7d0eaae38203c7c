// Package domain defines core types, interfaces, and errors for the role
// assignment cleanup tool.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError indicates a directory object or assignment does not exist.
// Benign in most flows: an unresolvable group member is skipped, an
// already-deleted assignment counts as removed.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ForbiddenError indicates the caller lacks permission. Fatal when it affects
// the whole scan (reading the membership graph, listing assignments), since a
// partial result would look misleadingly clean.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// ThrottledError indicates a transient service-side rejection (rate limiting,
// timeouts, 5xx). Retried with backoff; RetryAfter carries the service hint
// when one was given.
type ThrottledError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string { return e.Message }

// ValidationError indicates malformed input, e.g. an unparseable ledger row.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrForbidden creates a ForbiddenError with a formatted message.
func ErrForbidden(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// ErrThrottled creates a ThrottledError with a formatted message.
func ErrThrottled(format string, args ...interface{}) *ThrottledError {
	return &ThrottledError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError.
func IsForbidden(err error) bool {
	var fb *ForbiddenError
	return errors.As(err, &fb)
}

// IsThrottled reports whether err is (or wraps) a ThrottledError.
func IsThrottled(err error) bool {
	var th *ThrottledError
	return errors.As(err, &th)
}
