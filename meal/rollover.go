/*
rollover.go - Daily carry-forward of meal selections

PURPOSE:
  Once per day, every user without a record for "today" gets one,
  derived from their most recent prior record (usually yesterday's).
  Users who never selected anything default to Off/0.

CARRY RULES:
  - Meal state and additional items carry forward
  - Served flags always reset to false
  - IsExtra always resets to false (an extra grant is for one day)

IDEMPOTENCE:
  The create-or-skip decision is atomic: the store's create path fails
  with ErrDuplicateRecord if a record appeared between the check and
  the write, and rollover counts that as a skip. Running rollover twice
  for the same day creates nothing and moves no counter on the second
  run.

SEE ALSO:
  - api/scheduler.go: Fires this once per day at a fixed local time
  - store.go: ErrDuplicateRecord contract
*/
package meal

import (
	"context"
	"errors"
)

// RolloverResult summarizes one rollover run.
type RolloverResult struct {
	Day     Day
	Created int // records synthesized this run
	Skipped int // users that already had a record for the day
	Failed  int // per-user failures (first error is returned alongside)
}

// RunRollover ensures every user has a record for today. Per-user work
// is independent: a failure for one user does not stop the run, and the
// first error encountered is returned with the full result so the
// caller can log and retry the whole (idempotent) run.
func (e *Engine) RunRollover(ctx context.Context, today Day) (RolloverResult, error) {
	result := RolloverResult{Day: today}

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return result, err
	}

	var firstErr error
	for _, u := range users {
		created, err := e.rolloverUser(ctx, u.ID, today)
		switch {
		case err != nil && errors.Is(err, ErrDuplicateRecord):
			// A concurrent run or a user selection won the race.
			result.Skipped++
		case err != nil:
			result.Failed++
			if firstErr == nil {
				firstErr = err
			}
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}
	return result, firstErr
}

// rolloverUser performs the create-or-skip decision for one user.
func (e *Engine) rolloverUser(ctx context.Context, userID string, today Day) (created bool, err error) {
	existing, err := e.store.GetRecord(ctx, userID, today)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	prior, err := e.store.LatestRecordBefore(ctx, userID, today)
	if err != nil {
		return false, err
	}

	state := StateOff
	var items []string
	if prior != nil {
		state = prior.Meal
		items = prior.AdditionalItems
	}

	rec := newRecord(userID, today, state, items)
	// Served flags and IsExtra are zero on a fresh record; nothing to
	// reset. No record existed, so the full count is the delta.
	if err := e.store.ApplyChange(ctx, Change{Record: rec, Delta: rec.DailyCount}); err != nil {
		return false, err
	}
	return true, nil
}
