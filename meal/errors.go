/*
errors.go - Centralized error types for the meal engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Sentinels are matched with errors.Is(); structured variants carry
  user/day/slot context and Unwrap to their sentinel.

ERROR CATEGORIES:
  1. Validation errors - bad enum values, past-date mutations
  2. State-machine errors - already granted, already served, not enabled
  3. Store errors - missing rows, conflicts, persistence failures

GUARANTEE:
  No failure path leaves partial state: either a logical operation is
  fully applied (record write + counter delta) or nothing is.

SEE ALSO:
  - engine.go, serving.go: Return these errors
  - store.go: Conflict sentinels surfaced by implementations
*/
package meal

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidState is returned when a meal state or slot is outside
	// the closed enum. User-correctable.
	ErrInvalidState = errors.New("invalid meal state")

	// ErrPastDate is returned when a self-service update targets a day
	// before today. Staff updates are exempt.
	ErrPastDate = errors.New("cannot modify a past day")

	// ErrUserNotFound is returned when the referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrRecordNotFound is returned when a referenced record doesn't exist.
	ErrRecordNotFound = errors.New("meal record not found")

	// ErrAlreadyGranted is returned when an extra grant targets a slot
	// that is already part of the user's meal.
	ErrAlreadyGranted = errors.New("meal slot already granted")

	// ErrAlreadyServed is returned on a repeat serve confirmation.
	// Serving is a one-way transition; this is never silently ignored.
	ErrAlreadyServed = errors.New("meal slot already served")

	// ErrNotEnabled is returned when serving a slot the day's meal does
	// not include.
	ErrNotEnabled = errors.New("meal slot not enabled")

	// ErrDuplicateRecord is returned when creating a record for a
	// (user, day) that already has one. Rollover treats this as a skip.
	ErrDuplicateRecord = errors.New("record already exists for this day")

	// ErrConcurrentModification is returned when optimistic locking
	// detects a conflicting write. The caller may retry the whole
	// logical operation.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidStateError reports a value outside the State/Slot enums.
type InvalidStateError struct {
	Value string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid meal state %q (want off, lunch, dinner or both)", e.Value)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// PastDateError reports a self-service mutation on a past day.
type PastDateError struct {
	UserID string
	Day    Day
	Today  Day
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("cannot modify %s: before today (%s)", e.Day, e.Today)
}

func (e *PastDateError) Unwrap() error { return ErrPastDate }

// AlreadyGrantedError reports an extra grant for an already-enabled slot.
type AlreadyGrantedError struct {
	UserID string
	Day    Day
	Slot   Slot
	Meal   State
}

func (e *AlreadyGrantedError) Error() string {
	return fmt.Sprintf("%s on %s already includes %s (current: %s)", e.UserID, e.Day, e.Slot, e.Meal)
}

func (e *AlreadyGrantedError) Unwrap() error { return ErrAlreadyGranted }

// AlreadyServedError reports a repeat serve confirmation.
type AlreadyServedError struct {
	UserID string
	Day    Day
	Slot   Slot
}

func (e *AlreadyServedError) Error() string {
	return fmt.Sprintf("%s already served for %s on %s", e.Slot, e.UserID, e.Day)
}

func (e *AlreadyServedError) Unwrap() error { return ErrAlreadyServed }

// NotEnabledError reports serving a slot the meal does not include.
type NotEnabledError struct {
	UserID string
	Day    Day
	Slot   Slot
	Meal   State
}

func (e *NotEnabledError) Error() string {
	return fmt.Sprintf("%s not enabled for %s on %s (current: %s)", e.Slot, e.UserID, e.Day, e.Meal)
}

func (e *NotEnabledError) Unwrap() error { return ErrNotEnabled }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or a
// state-machine violation, not a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrPastDate) ||
		errors.Is(err, ErrNotEnabled)
}

// IsConflict returns true when the request collided with the current
// state of the record: a concurrent write, a duplicate create, or an
// operation that already happened.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrDuplicateRecord) ||
		errors.Is(err, ErrAlreadyGranted) ||
		errors.Is(err, ErrAlreadyServed)
}

// IsNotFound returns true if the error indicates a missing user or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
