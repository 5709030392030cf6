/*
Package meal provides the meal registration accounting engine.

PURPOSE:
  This package contains the domain types and algorithms for daily meal
  registration: per-day meal records, the denormalized running meal
  count on each user, serve-confirmation tracking, and the daily
  rollover that carries yesterday's selection forward.

KEY CONCEPTS IN THIS FILE (types.go):
  - State: A user's meal selection for one day (Off, Lunch, Dinner, Both)
  - Slot:  One independently servable unit (Lunch or Dinner)
  - User:  Diner identity with monetary balance and running meal count
  - Record: One meal record per (user, day)

CORE INVARIANTS:
  - User.TotalMealCount == sum of DailyCount over that user's records
  - DailyCount is a pure function of State (Off=0, single=1, Both=2)
  - A served flag may be true only while its slot is part of State

DESIGN PRINCIPLES:
  1. Closed enum: State is a tagged variant, never a free-form string
  2. Delta accounting: the running count is only ever moved by signed
     deltas computed from a state transition, never overwritten
  3. Precision: monetary balances use decimal.Decimal

SEE ALSO:
  - engine.go: Delta-based reconciliation
  - serving.go: Serve-once tracking
  - rollover.go: Daily carry-forward
  - store.go: Persistence interface
*/
package meal

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATE - Meal selection for one day
// =============================================================================

type State string

const (
	StateOff    State = "off"
	StateLunch  State = "lunch"
	StateDinner State = "dinner"
	StateBoth   State = "both"
)

// ParseState converts a string to a State. Returns InvalidStateError
// for anything outside the closed enum.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", &InvalidStateError{Value: s}
	}
	return st, nil
}

func (s State) Valid() bool {
	switch s {
	case StateOff, StateLunch, StateDinner, StateBoth:
		return true
	}
	return false
}

// DailyCount is the pure count function for a state.
func (s State) DailyCount() int {
	switch s {
	case StateLunch, StateDinner:
		return 1
	case StateBoth:
		return 2
	default:
		return 0
	}
}

// Includes reports whether the state enables the given slot.
func (s State) Includes(slot Slot) bool {
	switch slot {
	case SlotLunch:
		return s == StateLunch || s == StateBoth
	case SlotDinner:
		return s == StateDinner || s == StateBoth
	}
	return false
}

// WithSlot returns the state with the given slot enabled.
func (s State) WithSlot(slot Slot) State {
	if s.Includes(slot) {
		return s
	}
	if s == StateOff || s == "" {
		return slot.State()
	}
	// The other single-meal state plus this slot.
	return StateBoth
}

// =============================================================================
// SLOT - Independently servable unit within a day
// =============================================================================

type Slot string

const (
	SlotLunch  Slot = "lunch"
	SlotDinner Slot = "dinner"
)

func ParseSlot(s string) (Slot, error) {
	sl := Slot(s)
	if sl != SlotLunch && sl != SlotDinner {
		return "", &InvalidStateError{Value: s}
	}
	return sl, nil
}

// State returns the single-meal state for this slot.
func (sl Slot) State() State {
	if sl == SlotDinner {
		return StateDinner
	}
	return StateLunch
}

// =============================================================================
// USER - Diner with denormalized running meal count
// =============================================================================

type User struct {
	ID       string
	Name     string
	Cohort   string // e.g. class/year grouping
	Category string // e.g. resident, day-scholar, staff

	// Balance is the monetary account balance, adjusted by admins.
	Balance decimal.Decimal

	// TotalMealCount is the denormalized running sum of DailyCount over
	// all of this user's records. Mutated exclusively by
	// the engine via signed deltas, except for the explicit admin
	// recount override.
	TotalMealCount int

	CreatedAt time.Time
}

// =============================================================================
// RECORD - One meal record per (user, day)
// =============================================================================

type Record struct {
	ID     string
	UserID string
	Day    Day

	Meal            State
	AdditionalItems []string // add-on tags, e.g. dietary swaps

	// DailyCount is derived from Meal. Stored so that
	// the running total can be audited without re-deriving.
	DailyCount int

	LunchServed  bool
	DinnerServed bool

	// IsExtra marks a staff-granted meal the user did not select.
	IsExtra bool

	// Version is bumped on every write; used for optimistic locking.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetMeal transitions the record to a new state, recomputing DailyCount
// and clearing served flags that the new state no longer permits.
func (r *Record) SetMeal(s State) {
	r.Meal = s
	r.DailyCount = s.DailyCount()
	if !s.Includes(SlotLunch) {
		r.LunchServed = false
	}
	if !s.Includes(SlotDinner) {
		r.DinnerServed = false
	}
}

// Served reports the serve flag for a slot.
func (r *Record) Served(slot Slot) bool {
	if slot == SlotDinner {
		return r.DinnerServed
	}
	return r.LunchServed
}

// PendingSlots derives the outstanding (unserved) slots for staff
// serving views. An Off record counts both slots as outstanding so the
// serving line can still see the user and grant an extra.
func (r *Record) PendingSlots() []Slot {
	if r.Meal == StateOff {
		return []Slot{SlotLunch, SlotDinner}
	}
	var pending []Slot
	if r.Meal.Includes(SlotLunch) && !r.LunchServed {
		pending = append(pending, SlotLunch)
	}
	if r.Meal.Includes(SlotDinner) && !r.DinnerServed {
		pending = append(pending, SlotDinner)
	}
	return pending
}
