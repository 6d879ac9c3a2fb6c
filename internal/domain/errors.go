package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that the referenced entity does not exist within the
// caller's tenant.
var ErrNotFound = errors.New("not found")

// ErrForbidden signals that the caller lacks rights over the target entry.
var ErrForbidden = errors.New("forbidden")

// TransitionError rejects an operation that is not legal from the entry's
// current state. It is never retried; a silent no-op here would corrupt
// duration accounting.
type TransitionError struct {
	Op   Operation
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s entry in %s state", e.Op, e.From)
}

// ConflictError rejects a start while the user already has an active entry.
// ActiveEntryID lets the caller offer "resume existing" instead.
type ConflictError struct {
	ActiveEntryID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an active time entry already exists (id %s); stop or resume it first", e.ActiveEntryID)
}

// ValidationError rejects malformed input before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientError marks a store failure as safe to retry: the atomic write
// guarantee means a failed write never leaves a half-applied transition.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
