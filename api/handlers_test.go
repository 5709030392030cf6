package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinehall/meal-engine/api"
	"github.com/dinehall/meal-engine/meal"
	memstore "github.com/dinehall/meal-engine/meal/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	store  *memstore.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.NewMemory()
	handler := api.NewHandler(store)
	return &testServer{router: api.NewRouter(handler), store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (ts *testServer) createUser(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/users", api.CreateUserRequest{ID: id, Name: "User " + id})
	require.Equal(t, http.StatusCreated, rec.Code)
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

func TestCreateAndGetUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/users", api.CreateUserRequest{
		ID: "u1", Name: "Ada", Cohort: "2026", Category: "resident",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	u := decode[api.UserDTO](t, rec)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "2026", u.Cohort)
	assert.Equal(t, 0, u.TotalMealCount)
	assert.Equal(t, "0", u.Balance)
}

func TestGetUser_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUser_RequiresIDAndName(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/users", api.CreateUserRequest{Name: "No ID"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MEAL CHANGE ENDPOINTS
// =============================================================================

func TestUpdateMeal_MovesCounter(t *testing.T) {
	// GIVEN: A registered user
	// WHEN: They select Both for today via self-service
	// THEN: The record and the running count reflect the change

	ts := newTestServer(t)
	ts.createUser(t, "u1")
	today := meal.Today().String()

	rec := ts.do(t, http.MethodPut, "/api/users/u1/meal", api.MealChangeRequest{
		Date: today, Meal: "both", AdditionalItems: []string{"vegetarian"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[api.RecordDTO](t, rec)
	assert.Equal(t, "both", dto.Meal)
	assert.Equal(t, 2, dto.DailyCount)
	assert.Equal(t, []string{"vegetarian"}, dto.AdditionalItems)

	rec = ts.do(t, http.MethodGet, "/api/users/u1", nil)
	u := decode[api.UserDTO](t, rec)
	assert.Equal(t, 2, u.TotalMealCount)
}

func TestUpdateMeal_PastDateRejectedForSelfService(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")
	yesterday := meal.Today().Yesterday().String()

	rec := ts.do(t, http.MethodPut, "/api/users/u1/meal", api.MealChangeRequest{
		Date: yesterday, Meal: "lunch",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Staff override is allowed on past days.
	rec = ts.do(t, http.MethodPut, "/api/staff/users/u1/meal", api.MealChangeRequest{
		Date: yesterday, Meal: "lunch",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateMeal_RejectsUnknownState(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")

	rec := ts.do(t, http.MethodPut, "/api/users/u1/meal", api.MealChangeRequest{
		Date: meal.Today().String(), Meal: "breakfast",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMeal_UnknownUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/users/ghost/meal", api.MealChangeRequest{
		Date: meal.Today().String(), Meal: "lunch",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// STAFF ENDPOINTS
// =============================================================================

func TestGrantExtra_ConflictWhenAlreadyIncluded(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")
	today := meal.Today().String()

	rec := ts.do(t, http.MethodPost, "/api/staff/users/u1/extra", api.SlotRequest{
		Date: today, Slot: "lunch",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[api.RecordDTO](t, rec)
	assert.Equal(t, "lunch", dto.Meal)
	assert.True(t, dto.IsExtra)

	// Granting the same slot again is a conflict, never a double-count.
	rec = ts.do(t, http.MethodPost, "/api/staff/users/u1/extra", api.SlotRequest{
		Date: today, Slot: "lunch",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGrantExtraForAll_ReportsAffected(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "absent")
	ts.createUser(t, "eating")
	today := meal.Today().String()

	rec := ts.do(t, http.MethodPut, "/api/users/eating/meal", api.MealChangeRequest{
		Date: today, Meal: "dinner",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/staff/extra", api.SlotRequest{
		Date: today, Slot: "dinner",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.BulkExtraResponse](t, rec)
	assert.Equal(t, 1, resp.Affected, "only the absent user gets the grant")
}

func TestMarkServed_RepeatIsConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")
	today := meal.Today().String()

	rec := ts.do(t, http.MethodPut, "/api/users/u1/meal", api.MealChangeRequest{
		Date: today, Meal: "lunch",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/staff/users/u1/served", api.SlotRequest{
		Date: today, Slot: "lunch",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[api.RecordDTO](t, rec)
	assert.True(t, dto.LunchServed)

	rec = ts.do(t, http.MethodPost, "/api/staff/users/u1/served", api.SlotRequest{
		Date: today, Slot: "lunch",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMarkServed_SlotNotEnabled(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")
	today := meal.Today().String()

	rec := ts.do(t, http.MethodPost, "/api/staff/users/u1/served", api.SlotRequest{
		Date: today, Slot: "dinner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListUnserved(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")
	today := meal.Today().String()

	rec := ts.do(t, http.MethodPut, "/api/users/u1/meal", api.MealChangeRequest{
		Date: today, Meal: "both",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/staff/users/u1/served", api.SlotRequest{
		Date: today, Slot: "lunch",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/staff/unserved?date="+today, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]api.UnservedDTO](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, "u1", pending[0].UserID)
	assert.Equal(t, []string{"dinner"}, pending[0].Pending)
}

func TestListUnserved_RequiresDate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/staff/unserved", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestTriggerRollover(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")
	yesterday := meal.Today().Yesterday().String()

	rec := ts.do(t, http.MethodPut, "/api/staff/users/u1/meal", api.MealChangeRequest{
		Date: yesterday, Meal: "both",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/rollover", api.RolloverRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.RolloverResponse](t, rec)
	assert.Equal(t, meal.Today().String(), resp.Date)
	assert.Equal(t, 1, resp.Created)

	// Second trigger on the same day only skips.
	rec = ts.do(t, http.MethodPost, "/api/admin/rollover", api.RolloverRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[api.RolloverResponse](t, rec)
	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 1, resp.Skipped)
}

func TestAdjustBalance(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")

	rec := ts.do(t, http.MethodPost, "/api/admin/users/u1/balance", api.BalanceAdjustmentRequest{
		Delta: "25.50", Reason: "monthly deposit",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	u := decode[api.UserDTO](t, rec)
	assert.Equal(t, "25.5", u.Balance)

	rec = ts.do(t, http.MethodPost, "/api/admin/users/u1/balance", api.BalanceAdjustmentRequest{
		Delta: "not-a-number",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecountAndDrift(t *testing.T) {
	// GIVEN: A user whose stored counter was forced out of sync
	// WHEN: The drift audit and then a recount run
	// THEN: The audit reports the user once and the recount repairs it

	ts := newTestServer(t)
	ts.createUser(t, "u1")
	today := meal.Today().String()

	rec := ts.do(t, http.MethodPut, "/api/users/u1/meal", api.MealChangeRequest{
		Date: today, Meal: "both",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, ts.store.SetTotalMealCount(context.Background(), "u1", 99))

	rec = ts.do(t, http.MethodGet, "/api/admin/drift", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	drifts := decode[[]api.DriftDTO](t, rec)
	require.Len(t, drifts, 1)
	assert.Equal(t, 99, drifts[0].Stored)
	assert.Equal(t, 2, drifts[0].Computed)

	rec = ts.do(t, http.MethodPost, "/api/admin/users/u1/recount", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.RecountResponse](t, rec)
	assert.Equal(t, 99, resp.OldTotal)
	assert.Equal(t, 2, resp.NewTotal)

	rec = ts.do(t, http.MethodGet, "/api/admin/drift", nil)
	drifts = decode[[]api.DriftDTO](t, rec)
	assert.Empty(t, drifts)
}

func TestReport_ReturnsRange(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1")
	today := meal.Today()

	for _, d := range []meal.Day{today.AddDays(-2), today.AddDays(-1), today} {
		rec := ts.do(t, http.MethodPut, "/api/staff/users/u1/meal", api.MealChangeRequest{
			Date: d.String(), Meal: "lunch",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	path := "/api/admin/report?from=" + today.AddDays(-1).String() + "&to=" + today.String()
	rec := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]api.RecordDTO](t, rec)
	assert.Len(t, records, 2)

	rec = ts.do(t, http.MethodGet, "/api/admin/report?from="+today.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
