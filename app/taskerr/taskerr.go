// Package taskerr defines the failure taxonomy used at the worker boundary.
// Handlers return classified errors; the dispatcher decides between retry
// and final failure based on them. Anything unclassified is treated as fatal.
package taskerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown or expired task ids.
	ErrNotFound = errors.New("task not found")
	// ErrQueueUnavailable is returned when no queue is configured for a kind.
	ErrQueueUnavailable = errors.New("no queue configured for task kind")
	// ErrResourceExhausted marks capacity pressure; the task stays PENDING.
	ErrResourceExhausted = errors.New("queue capacity exhausted")
)

// ValidationError marks a malformed payload. Fatal, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// Validation builds a ValidationError.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// TransientError marks a temporary failure (rate limit, timeout,
// momentary unavailability). Retryable per backoff policy.
type TransientError struct {
	Msg string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return "transient: " + e.Msg + ": " + e.Err.Error()
	}
	return "transient: " + e.Msg
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error, format string, args ...interface{}) error {
	return &TransientError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// TimeoutError marks a task that exceeded one of its time limits. Fatal.
type TimeoutError struct {
	Msg string
}

func (e *TimeoutError) Error() string {
	return "timeout: " + e.Msg
}

// Timeout builds a TimeoutError.
func Timeout(format string, args ...interface{}) error {
	return &TimeoutError{Msg: fmt.Sprintf(format, args...)}
}

// FatalError marks a permanent failure from a handler. Never retried.
type FatalError struct {
	Msg string
	Err error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return "fatal: " + e.Msg + ": " + e.Err.Error()
	}
	return "fatal: " + e.Msg
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as non-retryable.
func Fatal(err error, format string, args ...interface{}) error {
	return &FatalError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTimeout reports whether err is a time-limit failure.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
