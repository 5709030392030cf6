/*
engine.go - Delta-based meal count reconciliation

PURPOSE:
  The Engine is the only component allowed to move a user's running
  meal count. Every state transition is expressed as a signed delta
  (newCount - oldCount) and applied together with the record write in
  one atomic store operation, so the denormalized total never drifts
  from the sum of per-day records.

WHY DELTAS?
  Two concurrent writers that both "recompute the total" can race and
  lose an update. A delta computed against the exact record version the
  writer read, applied with optimistic locking, either lands on the
  state it was computed from or fails with a conflict. The total is
  never read-modify-written independently of the record.

SELF-SERVICE vs STAFF:
  ApplyMealChange (self-service) refuses days before today.
  ApplyStaffChange runs the identical algorithm without the date gate.

EXTRA GRANTS:
  GrantExtra enables a slot for a user who opted out:
    Off/absent + slot  -> slot state   (delta +1)
    other single + slot -> Both        (delta +1)
    slot already included -> AlreadyGrantedError
  GrantExtraForAll applies the same to every Off/absent user for a day
  in one batch write.

SEE ALSO:
  - store.go: Atomicity contract for ApplyChange
  - serving.go: Serve confirmation (no counter movement)
  - rollover.go: Daily carry-forward
*/
package meal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine implements the reconciliation, serving and rollover logic on
// top of a Store.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Store exposes the underlying store for read-only callers (HTTP layer).
func (e *Engine) Store() Store { return e.store }

// =============================================================================
// MEAL CHANGES (self-service and staff)
// =============================================================================

// ApplyMealChange records a user's own selection for a day. The day
// must be today or later.
func (e *Engine) ApplyMealChange(ctx context.Context, userID string, day Day, state State, items []string) (*Record, error) {
	if !state.Valid() {
		return nil, &InvalidStateError{Value: string(state)}
	}
	today := Today()
	if day.Before(today) {
		return nil, &PastDateError{UserID: userID, Day: day, Today: today}
	}
	return e.apply(ctx, userID, day, state, items)
}

// ApplyStaffChange records a staff override for any day. Same delta
// algorithm as ApplyMealChange, only the past-day restriction is lifted.
func (e *Engine) ApplyStaffChange(ctx context.Context, userID string, day Day, state State, items []string) (*Record, error) {
	if !state.Valid() {
		return nil, &InvalidStateError{Value: string(state)}
	}
	return e.apply(ctx, userID, day, state, items)
}

// apply is the shared update-or-create path. The counter delta is
// computed against the record version that was read, and the store
// applies record + delta atomically.
func (e *Engine) apply(ctx context.Context, userID string, day Day, state State, items []string) (*Record, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	existing, err := e.store.GetRecord(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	var ch Change
	if existing == nil {
		rec := newRecord(userID, day, state, items)
		ch = Change{Record: rec, Delta: rec.DailyCount}
	} else {
		rec := *existing
		oldCount := rec.DailyCount
		rec.SetMeal(state)
		rec.AdditionalItems = items
		rec.UpdatedAt = time.Now().UTC()
		ch = Change{Record: rec, Delta: rec.DailyCount - oldCount}
	}

	if err := e.store.ApplyChange(ctx, ch); err != nil {
		return nil, err
	}
	applied := ch.Record
	applied.Version++
	return &applied, nil
}

// =============================================================================
// EXTRA GRANTS
// =============================================================================

// GrantExtra enables a meal slot for a user outside their own request.
func (e *Engine) GrantExtra(ctx context.Context, userID string, slot Slot, day Day) (*Record, error) {
	if _, err := ParseSlot(string(slot)); err != nil {
		return nil, err
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	existing, err := e.store.GetRecord(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Meal.Includes(slot) {
		return nil, &AlreadyGrantedError{UserID: userID, Day: day, Slot: slot, Meal: existing.Meal}
	}

	var ch Change
	if existing == nil {
		rec := newRecord(userID, day, slot.State(), nil)
		rec.IsExtra = true
		ch = Change{Record: rec, Delta: rec.DailyCount}
	} else {
		rec := *existing
		oldCount := rec.DailyCount
		rec.SetMeal(rec.Meal.WithSlot(slot))
		rec.IsExtra = true
		rec.UpdatedAt = time.Now().UTC()
		ch = Change{Record: rec, Delta: rec.DailyCount - oldCount}
	}

	if err := e.store.ApplyChange(ctx, ch); err != nil {
		return nil, err
	}
	applied := ch.Record
	applied.Version++
	return &applied, nil
}

// GrantExtraForAll grants the slot to every user whose record for day
// is Off or missing, as one batch. Returns the number of affected users.
func (e *Engine) GrantExtraForAll(ctx context.Context, slot Slot, day Day) (int, error) {
	if _, err := ParseSlot(string(slot)); err != nil {
		return 0, err
	}

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	records, err := e.store.ListRecordsByDay(ctx, day)
	if err != nil {
		return 0, err
	}
	byUser := make(map[string]Record, len(records))
	for _, r := range records {
		byUser[r.UserID] = r
	}

	var changes []Change
	for _, u := range users {
		existing, ok := byUser[u.ID]
		switch {
		case !ok:
			rec := newRecord(u.ID, day, slot.State(), nil)
			rec.IsExtra = true
			changes = append(changes, Change{Record: rec, Delta: rec.DailyCount})
		case existing.Meal == StateOff:
			rec := existing
			oldCount := rec.DailyCount
			rec.SetMeal(slot.State())
			rec.IsExtra = true
			rec.UpdatedAt = time.Now().UTC()
			changes = append(changes, Change{Record: rec, Delta: rec.DailyCount - oldCount})
		}
	}

	if len(changes) == 0 {
		return 0, nil
	}
	if err := e.store.ApplyChangeBatch(ctx, changes); err != nil {
		return 0, err
	}
	return len(changes), nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// AdjustBalance applies a signed monetary delta to the user's balance.
func (e *Engine) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (*User, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := e.store.ApplyBalanceDelta(ctx, userID, delta); err != nil {
		return nil, err
	}
	return e.store.GetUser(ctx, userID)
}

// RecountResult reports an administrative counter override.
type RecountResult struct {
	UserID   string
	OldTotal int
	NewTotal int
}

// RecountUser is the explicit administrative override: it overwrites
// the running count with the sum of the user's records, repairing any
// drift that crept in.
func (e *Engine) RecountUser(ctx context.Context, userID string) (*RecountResult, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	records, err := e.store.ListRecordsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, r := range records {
		total += r.DailyCount
	}

	if err := e.store.SetTotalMealCount(ctx, userID, total); err != nil {
		return nil, err
	}
	return &RecountResult{UserID: userID, OldTotal: user.TotalMealCount, NewTotal: total}, nil
}

// CounterDrift reports one user whose stored total disagrees with the
// sum of their records.
type CounterDrift struct {
	UserID   string
	Stored   int
	Computed int
}

// VerifyCounters audits stored totals against record sums for all
// users. Read-only.
func (e *Engine) VerifyCounters(ctx context.Context) ([]CounterDrift, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var drifts []CounterDrift
	for _, u := range users {
		records, err := e.store.ListRecordsByUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, r := range records {
			total += r.DailyCount
		}
		if total != u.TotalMealCount {
			drifts = append(drifts, CounterDrift{UserID: u.ID, Stored: u.TotalMealCount, Computed: total})
		}
	}
	return drifts, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func newRecord(userID string, day Day, state State, items []string) Record {
	now := time.Now().UTC()
	rec := Record{
		ID:              uuid.NewString(),
		UserID:          userID,
		Day:             day,
		AdditionalItems: items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rec.SetMeal(state)
	return rec
}
