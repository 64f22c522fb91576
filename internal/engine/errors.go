package engine

import (
	"errors"
	"fmt"
)

// Error is a typed engine failure. Callers distinguish the four
// categories by Code; everything else propagates wrapped.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the operation that failed (insert, delete, read, ...).
	Op string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidRequest marks a request rejected before any
	// storage access (for example id filters combined with non-id
	// filters on one delete call).
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeOwnershipViolation marks a write touching rows owned by
	// another app without elevated permission. The whole operation
	// rolls back; not even the passing rows commit.
	ErrCodeOwnershipViolation ErrorCode = "OWNERSHIP_VIOLATION"

	// ErrCodeInvariantViolation marks a programming-invariant failure,
	// such as a delete plan constructed without its read-before-delete
	// requirement. Not retryable.
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	// ErrCodeStorageFailure marks an I/O or constraint failure
	// surfaced from the store after planning succeeded.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the engine error code carried by err, or "" when err
// is not an engine error. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidRequest reports whether err is an invalid-request error.
func IsInvalidRequest(err error) bool {
	return CodeOf(err) == ErrCodeInvalidRequest
}

// IsOwnershipViolation reports whether err is an ownership violation.
func IsOwnershipViolation(err error) bool {
	return CodeOf(err) == ErrCodeOwnershipViolation
}

func invalidRequest(op, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidRequest, Op: op, Message: fmt.Sprintf(format, args...)}
}

func ownershipViolation(op, format string, args ...any) *Error {
	return &Error{Code: ErrCodeOwnershipViolation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func invariantViolation(op, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvariantViolation, Op: op, Message: fmt.Sprintf(format, args...)}
}
