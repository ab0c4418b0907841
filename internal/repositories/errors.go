package repositories

import (
	"fmt"
	"time"
)

// StoreError is a RepositoryError for stores that do not wrap a backend error of their own.
type StoreError struct {
	Op          string
	Message     string
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) IsNotFound() bool    { return e.NotFound }
func (e *StoreError) IsConflict() bool    { return e.Conflict }
func (e *StoreError) IsUnavailable() bool { return e.Unavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op, message string) *StoreError {
	return &StoreError{Op: op, Message: message, NotFound: true}
}

// NewConflictError reports a failed optimistic-concurrency check.
func NewConflictError(op, message string) *StoreError {
	return &StoreError{Op: op, Message: message, Conflict: true}
}

// NextVersion returns the UpdatedAt stamp for a write: now truncated to the microsecond precision
// Firestore keeps, and strictly after the previous stamp.
func NextVersion(now, previous time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !previous.IsZero() && !now.After(previous) {
		now = previous.Add(time.Microsecond)
	}
	return now
}
