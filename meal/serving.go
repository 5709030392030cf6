/*
serving.go - Serve-confirmation tracking

PURPOSE:
  Tracks the binary served flag per meal slot per day. The state
  machine per (record, slot) is:

    NotEnabled -> (meal change) -> Enabled-Unserved -> Enabled-Served

  The only transition this file performs is Unserved -> Served, exactly
  once. A repeat confirmation is an error, never a silent success, so
  the serving line can trust a rejection to mean "this tray was already
  handed out".

SEE ALSO:
  - engine.go: Meal changes that enable/disable slots
  - types.go: Record.PendingSlots derivation
*/
package meal

import (
	"context"
	"time"
)

// =============================================================================
// SERVE CONFIRMATION
// =============================================================================

// MarkServed confirms that a slot was served. Fails with NotEnabledError
// if the day's meal does not include the slot (or no record exists),
// and AlreadyServedError on a repeat confirmation. On success exactly
// that slot's flag is set; the meal state, the other slot and the
// running count are untouched.
func (e *Engine) MarkServed(ctx context.Context, userID string, slot Slot, day Day) (*Record, error) {
	if _, err := ParseSlot(string(slot)); err != nil {
		return nil, err
	}

	existing, err := e.store.GetRecord(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if existing == nil || !existing.Meal.Includes(slot) {
		meal := StateOff
		if existing != nil {
			meal = existing.Meal
		}
		return nil, &NotEnabledError{UserID: userID, Day: day, Slot: slot, Meal: meal}
	}
	if existing.Served(slot) {
		return nil, &AlreadyServedError{UserID: userID, Day: day, Slot: slot}
	}

	rec := *existing
	if slot == SlotDinner {
		rec.DinnerServed = true
	} else {
		rec.LunchServed = true
	}
	rec.UpdatedAt = time.Now().UTC()

	// No counter movement: serving does not change the meal count.
	if err := e.store.ApplyChange(ctx, Change{Record: rec, Delta: 0}); err != nil {
		return nil, err
	}
	rec.Version++
	return &rec, nil
}

// =============================================================================
// UNSERVED LISTING (staff view, read-only)
// =============================================================================

// ServingFilter narrows the unserved listing. Empty fields match all.
type ServingFilter struct {
	Cohort   string
	Category string
}

// PendingServing is one user's outstanding slots for a day.
type PendingServing struct {
	UserID          string
	Name            string
	Cohort          string
	Category        string
	Meal            State
	Pending         []Slot
	IsExtra         bool
	AdditionalItems []string
}

// ListUnserved returns, for each matching user, the slots still
// outstanding on the given day. A user with no record is treated as
// Off: both slots are listed so the serving line can see them and
// grant an extra. Never mutates state.
func (e *Engine) ListUnserved(ctx context.Context, day Day, filter ServingFilter) ([]PendingServing, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	records, err := e.store.ListRecordsByDay(ctx, day)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]Record, len(records))
	for _, r := range records {
		byUser[r.UserID] = r
	}

	var out []PendingServing
	for _, u := range users {
		if filter.Cohort != "" && u.Cohort != filter.Cohort {
			continue
		}
		if filter.Category != "" && u.Category != filter.Category {
			continue
		}

		entry := PendingServing{
			UserID:   u.ID,
			Name:     u.Name,
			Cohort:   u.Cohort,
			Category: u.Category,
			Meal:     StateOff,
			Pending:  []Slot{SlotLunch, SlotDinner},
		}
		if rec, ok := byUser[u.ID]; ok {
			entry.Meal = rec.Meal
			entry.Pending = rec.PendingSlots()
			entry.IsExtra = rec.IsExtra
			entry.AdditionalItems = rec.AdditionalItems
		}
		if len(entry.Pending) == 0 {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
