// Package result provides the uniform Result(ok|err) return shape used at
// every public boundary in the core, replacing the exception-based flow
// control (see design notes in DESIGN.md).
package result

import (
	"errors"
	"fmt"
)

// ErrorKind is the error taxonomy from the core's error handling design.
type ErrorKind string

const (
	// KindTransport covers connect refused, read/write errors, timeouts —
	// recoverable by reconnect.
	KindTransport ErrorKind = "transport"
	// KindProtocol covers malformed frames and unknown notifications.
	KindProtocol ErrorKind = "protocol"
	// KindValidation covers out-of-range values, unknown entities/commands.
	KindValidation ErrorKind = "validation"
	// KindNotFound covers missing zones/clients/groups/streams.
	KindNotFound ErrorKind = "not_found"
	// KindConflict covers startup port conflicts — critical, shutdown-triggering.
	KindConflict ErrorKind = "conflict"
	// KindCancelled covers cooperative cancellation — never logged as an error.
	KindCancelled ErrorKind = "cancelled"
	// KindInternal covers programmer errors, surfaced with the underlying cause.
	KindInternal ErrorKind = "internal"
)

// CoreError is the concrete error type carried by a failed Result.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New builds a CoreError with no wrapped cause.
func New(kind ErrorKind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap builds a CoreError wrapping an underlying cause.
func Wrap(kind ErrorKind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// AsCoreError extracts a *CoreError from err, if any is in its chain.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Result is a generic ok/err pair. The zero value is not meaningful;
// always construct via Ok or Err.
type Result[T any] struct {
	ok    bool
	value T
	err   *CoreError
}

// Ok builds a successful Result carrying value.
func Ok[T any](value T) Result[T] {
	return Result[T]{ok: true, value: value}
}

// Err builds a failed Result carrying a CoreError.
func Err[T any](kind ErrorKind, message string) Result[T] {
	return Result[T]{err: New(kind, message)}
}

// ErrWrap builds a failed Result wrapping an underlying cause.
func ErrWrap[T any](kind ErrorKind, message string, cause error) Result[T] {
	return Result[T]{err: Wrap(kind, message, cause)}
}

// IsOk reports whether the Result succeeded.
func (r Result[T]) IsOk() bool { return r.ok }

// Value returns the carried value and whether the Result succeeded.
func (r Result[T]) Value() (T, bool) { return r.value, r.ok }

// Error returns the carried error, or nil if the Result succeeded.
func (r Result[T]) Error() *CoreError { return r.err }

// Unwrap returns the value and a plain error, suitable for idiomatic
// `v, err := r.Unwrap()` call sites at the edge of the Result world.
func (r Result[T]) Unwrap() (T, error) {
	if r.ok {
		return r.value, nil
	}
	return r.value, r.err
}
