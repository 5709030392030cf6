/*
store.go - Persistence interface for users and meal records

PURPOSE:
  Defines the interface between the domain logic and the database.
  The engine never talks to SQL directly; it describes a logical change
  (record write + counter delta) and the Store applies it atomically.

ATOMICITY CONTRACT:
  ApplyChange persists one record write together with the signed delta
  to the owning user's running meal count. Both succeed or both roll
  back - a concurrent reader never observes the record updated without
  the counter, or vice versa. This is what keeps the running total true
  after every logical operation.

LOST-UPDATE PREVENTION:
  Records carry a Version. An update names the version it read; if the
  row has moved on, the store returns ErrConcurrentModification and the
  caller re-runs the whole logical operation. A create of an existing
  (user, day) returns ErrDuplicateRecord, which rollover treats as
  "someone else got there first".

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite (SQL transactions)
  - meal/store/memory.go:   In-memory for testing

SEE ALSO:
  - engine.go: The only mutator of the running count
*/
package meal

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CHANGE - One logical mutation: a record write plus a counter delta
// =============================================================================

// Change couples a record write with the signed delta it implies for
// the owning user's TotalMealCount. A Record with Version 0 is a
// create; any other version is an optimistic update of that version.
type Change struct {
	Record Record
	Delta  int
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

type Store interface {
	// --- Users ---

	// SaveUser creates or replaces a user row. The running meal count
	// is NOT writable through this method once the user exists; use
	// ApplyChange deltas or SetTotalMealCount.
	SaveUser(ctx context.Context, u User) error

	// GetUser returns the user, or (nil, nil) if absent.
	GetUser(ctx context.Context, userID string) (*User, error)

	ListUsers(ctx context.Context) ([]User, error)

	// ApplyBalanceDelta atomically adds delta to the user's monetary
	// balance.
	ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal) error

	// SetTotalMealCount overwrites the running count. Admin recount
	// only; every other path moves the counter by deltas.
	SetTotalMealCount(ctx context.Context, userID string, total int) error

	// --- Records ---

	// GetRecord returns the record for (user, day), or (nil, nil).
	GetRecord(ctx context.Context, userID string, day Day) (*Record, error)

	// LatestRecordBefore returns the most recent record strictly before
	// day, or (nil, nil). Used by rollover.
	LatestRecordBefore(ctx context.Context, userID string, day Day) (*Record, error)

	ListRecordsByDay(ctx context.Context, day Day) ([]Record, error)
	ListRecordsByUser(ctx context.Context, userID string) ([]Record, error)
	ListRecordsInRange(ctx context.Context, from, to Day) ([]Record, error)

	// --- Atomic mutation ---

	// ApplyChange applies one logical change atomically. See the
	// package comment for the Version/conflict contract.
	ApplyChange(ctx context.Context, ch Change) error

	// ApplyChangeBatch applies multiple changes in one transaction.
	// Either all are applied or none. Used by bulk extra grants.
	ApplyChangeBatch(ctx context.Context, chs []Change) error
}
