package meal_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinehall/meal-engine/meal"
)

// =============================================================================
// ROLLOVER TESTS
// =============================================================================

func TestRunRollover_CarriesYesterdayForward(t *testing.T) {
	// GIVEN: A user who selected Both with items yesterday, dinner served
	// WHEN: Rollover runs for today
	// THEN: Today's record copies state and items, served/extra reset,
	// and the counter moves by the full new count

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, store, "u1")
	today := meal.Today()
	yesterday := today.Yesterday()

	_, err := engine.ApplyStaffChange(ctx, "u1", yesterday, meal.StateBoth, []string{"vegetarian"})
	require.NoError(t, err)
	_, err = engine.MarkServed(ctx, "u1", meal.SlotDinner, yesterday)
	require.NoError(t, err)
	require.Equal(t, 2, totalCount(t, store, "u1"))

	result, err := engine.RunRollover(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Skipped)

	rec, err := store.GetRecord(ctx, "u1", today)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, meal.StateBoth, rec.Meal)
	assert.Equal(t, []string{"vegetarian"}, rec.AdditionalItems)
	assert.False(t, rec.LunchServed)
	assert.False(t, rec.DinnerServed)
	assert.False(t, rec.IsExtra)
	assert.Equal(t, 4, totalCount(t, store, "u1"))
}

func TestRunRollover_UsesMostRecentPriorRecord(t *testing.T) {
	// A user who last selected three days ago still rolls that
	// selection forward across the gap.

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, store, "u1")
	today := meal.Today()

	_, err := engine.ApplyStaffChange(ctx, "u1", today.AddDays(-3), meal.StateDinner, nil)
	require.NoError(t, err)

	_, err = engine.RunRollover(ctx, today)
	require.NoError(t, err)

	rec, err := store.GetRecord(ctx, "u1", today)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, meal.StateDinner, rec.Meal)
	assert.Equal(t, 2, totalCount(t, store, "u1"))
}

func TestRunRollover_NoPriorRecordDefaultsToOff(t *testing.T) {
	// GIVEN: A user with no record at all
	// WHEN: Rollover runs, twice
	// THEN: One Off/0 record exists and the counter never moves

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, store, "u1")
	today := meal.Today()

	result, err := engine.RunRollover(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	rec, err := store.GetRecord(ctx, "u1", today)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, meal.StateOff, rec.Meal)
	assert.Equal(t, 0, rec.DailyCount)
	assert.Equal(t, 0, totalCount(t, store, "u1"))

	// Second run: no second record, no counter movement.
	result, err = engine.RunRollover(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)

	records, err := store.ListRecordsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 0, totalCount(t, store, "u1"))
}

func TestRunRollover_IsIdempotent(t *testing.T) {
	// Running rollover twice on the same day must not double-create or
	// double-increment.

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, store, "u1")
	seedUser(t, store, "u2")
	today := meal.Today()
	_, err := engine.ApplyStaffChange(ctx, "u1", today.Yesterday(), meal.StateBoth, nil)
	require.NoError(t, err)

	first, err := engine.RunRollover(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := engine.RunRollover(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)

	assert.Equal(t, 4, totalCount(t, store, "u1"), "yesterday's 2 plus today's carried 2")
	assert.Equal(t, recordSum(t, store, "u1"), totalCount(t, store, "u1"))
}

func TestRunRollover_SkipsUsersWithTodayRecord(t *testing.T) {
	// A user who already made today's selection is untouched.

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, store, "chose")
	seedUser(t, store, "silent")
	today := meal.Today()

	_, err := engine.ApplyMealChange(ctx, "chose", today, meal.StateLunch, nil)
	require.NoError(t, err)
	_, err = engine.ApplyStaffChange(ctx, "silent", today.Yesterday(), meal.StateLunch, nil)
	require.NoError(t, err)

	result, err := engine.RunRollover(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)

	rec, err := store.GetRecord(ctx, "chose", today)
	require.NoError(t, err)
	assert.Equal(t, meal.StateLunch, rec.Meal)
	assert.Equal(t, 1, totalCount(t, store, "chose"))
}
