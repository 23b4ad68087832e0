package remote

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed failure taxonomy for remote operations.
//
// Terminal kinds mean the write can never succeed as written and must be
// resolved by rollback. Everything else is retryable with backoff.
type ErrorKind string

const (
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindNotFound           ErrorKind = "not_found"
	KindInvalidArgument    ErrorKind = "invalid_argument"
	KindFailedPrecondition ErrorKind = "failed_precondition"
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindUnavailable        ErrorKind = "unavailable"
	KindDeadlineExceeded   ErrorKind = "deadline_exceeded"
	KindInternal           ErrorKind = "internal"
	KindUnknown            ErrorKind = "unknown"
)

// Terminal reports whether retrying the same operation can never succeed.
func (k ErrorKind) Terminal() bool {
	switch k {
	case KindPermissionDenied, KindNotFound, KindInvalidArgument,
		KindFailedPrecondition, KindUnauthenticated:
		return true
	default:
		return false
	}
}

// StoreError is a classified remote-store failure.
type StoreError struct {
	Kind    ErrorKind
	Op      string // primitive that failed, e.g. "merge_fields"
	Message string
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewError creates a StoreError.
func NewError(kind ErrorKind, op, message string) *StoreError {
	return &StoreError{Kind: kind, Op: op, Message: message}
}

// WrapError creates a StoreError around an underlying cause.
func WrapError(kind ErrorKind, op, message string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Message: message, Err: err}
}

// Classify extracts the error kind from a (possibly wrapped) error.
// Unclassified errors report KindUnknown, which is non-terminal: an error we
// cannot attribute to the write itself must stay retryable.
func Classify(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsTerminal reports whether the error's kind is terminal.
func IsTerminal(err error) bool {
	return Classify(err).Terminal()
}

// IsNotFound reports whether the error is a not-found failure.
// The resolver uses this to distinguish "entity deleted remotely" from other
// fetch failures during rollback.
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}
