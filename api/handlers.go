/*
handlers.go - HTTP API handlers for the meal registration engine

PURPOSE:
  Exposes the meal engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    GET    /api/users                     List users
    POST   /api/users                     Register user
    GET    /api/users/{id}                User details
    GET    /api/users/{id}/records        Meal history
    GET    /api/users/{id}/meal?date=     One day's record
    PUT    /api/users/{id}/meal           Self-service meal update

  Staff:
    PUT    /api/staff/users/{id}/meal     Staff meal override (any day)
    POST   /api/staff/users/{id}/extra    Grant an extra meal slot
    POST   /api/staff/extra               Bulk extra grant (all Off users)
    POST   /api/staff/users/{id}/served   Serve confirmation
    GET    /api/staff/unserved?date=      Outstanding slots listing

  Admin:
    POST   /api/admin/rollover            Trigger daily rollover
    POST   /api/admin/users/{id}/balance  Monetary adjustment
    POST   /api/admin/users/{id}/recount  Counter override from records
    GET    /api/admin/drift               Counter audit (invariant check)
    GET    /api/admin/report?from=&to=    Date-range record export (JSON)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, past-date mutations, invalid input
  - 404: User/record not found
  - 409: Already granted, already served, write conflicts
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware here; sessions and credentials are
  handled by an upstream gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dinehall/meal-engine/meal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  meal.Store
	Engine *meal.Engine
}

// NewHandler creates a new handler with the given store.
func NewHandler(store meal.Store) *Handler {
	return &Handler{
		Store:  store,
		Engine: meal.NewEngine(store),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	u, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// CreateUser registers a new user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	u := meal.User{
		ID:       req.ID,
		Name:     req.Name,
		Cohort:   req.Cohort,
		Category: req.Category,
	}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// ListUserRecords returns a user's full meal history.
func (h *Handler) ListUserRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	records, err := h.Store.ListRecordsByUser(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list records", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// GetUserMeal returns one day's record for a user.
func (h *Handler) GetUserMeal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	day, ok := h.parseDateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	rec, err := h.Store.GetRecord(r.Context(), id, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get record", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "No record for this day", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// =============================================================================
// MEAL CHANGE HANDLERS
// =============================================================================

// UpdateMeal applies a self-service meal change (today or later only).
func (h *Handler) UpdateMeal(w http.ResponseWriter, r *http.Request) {
	h.applyMealChange(w, r, false)
}

// StaffUpdateMeal applies a staff override (any day).
func (h *Handler) StaffUpdateMeal(w http.ResponseWriter, r *http.Request) {
	h.applyMealChange(w, r, true)
}

func (h *Handler) applyMealChange(w http.ResponseWriter, r *http.Request, staff bool) {
	id := chi.URLParam(r, "id")

	var req MealChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	day, ok := h.parseDateParam(w, req.Date)
	if !ok {
		return
	}
	state, err := meal.ParseState(req.Meal)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var rec *meal.Record
	if staff {
		rec, err = h.Engine.ApplyStaffChange(r.Context(), id, day, state, req.AdditionalItems)
	} else {
		rec, err = h.Engine.ApplyMealChange(r.Context(), id, day, state, req.AdditionalItems)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// GrantExtra enables a meal slot for one user.
func (h *Handler) GrantExtra(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, day, slot, ok := h.parseSlotRequest(w, r)
	if !ok {
		return
	}

	rec, err := h.Engine.GrantExtra(r.Context(), id, slot, day)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// GrantExtraForAll grants a slot to every Off/absent user for a day.
func (h *Handler) GrantExtraForAll(w http.ResponseWriter, r *http.Request) {
	req, day, slot, ok := h.parseSlotRequest(w, r)
	if !ok {
		return
	}

	affected, err := h.Engine.GrantExtraForAll(r.Context(), slot, day)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkExtraResponse{
		Date:     req.Date,
		Slot:     req.Slot,
		Affected: affected,
	})
}

// MarkServed confirms one slot was served.
func (h *Handler) MarkServed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, day, slot, ok := h.parseSlotRequest(w, r)
	if !ok {
		return
	}

	rec, err := h.Engine.MarkServed(r.Context(), id, slot, day)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// ListUnserved returns users with outstanding slots for a day.
func (h *Handler) ListUnserved(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	filter := meal.ServingFilter{
		Cohort:   r.URL.Query().Get("cohort"),
		Category: r.URL.Query().Get("category"),
	}

	pending, err := h.Engine.ListUnserved(r.Context(), day, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list unserved", err)
		return
	}

	dtos := make([]UnservedDTO, len(pending))
	for i, p := range pending {
		dtos[i] = toUnservedDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRollover runs the daily rollover immediately.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	day := meal.Today()
	if req.Date != "" {
		var ok bool
		if day, ok = h.parseDateParam(w, req.Date); !ok {
			return
		}
	}

	result, err := h.Engine.RunRollover(r.Context(), day)
	if err != nil && result.Created == 0 && result.Skipped == 0 {
		writeError(w, http.StatusInternalServerError, "Rollover failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RolloverResponse{
		Date:    result.Day.String(),
		Created: result.Created,
		Skipped: result.Skipped,
		Failed:  result.Failed,
	})
}

// AdjustBalance applies a signed monetary delta.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req BalanceAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	delta, err := decimal.NewFromString(req.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delta (use a decimal string)", err)
		return
	}

	u, err := h.Engine.AdjustBalance(r.Context(), id, delta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// RecountUser overwrites the running count from the records.
func (h *Handler) RecountUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.Engine.RecountUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecountResponse{
		UserID:   result.UserID,
		OldTotal: result.OldTotal,
		NewTotal: result.NewTotal,
	})
}

// ListDrift audits running counts against record sums.
func (h *Handler) ListDrift(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.Engine.VerifyCounters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Counter audit failed", err)
		return
	}

	dtos := make([]DriftDTO, len(drifts))
	for i, d := range drifts {
		dtos[i] = DriftDTO{UserID: d.UserID, Stored: d.Stored, Computed: d.Computed}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Report returns all records in a date range. Formatting (spreadsheet
// export etc.) is a downstream concern.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	from, ok := h.parseDateParam(w, r.URL.Query().Get("from"))
	if !ok {
		return
	}
	to, ok := h.parseDateParam(w, r.URL.Query().Get("to"))
	if !ok {
		return
	}

	records, err := h.Store.ListRecordsInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) parseDateParam(w http.ResponseWriter, value string) (meal.Day, bool) {
	if value == "" {
		writeError(w, http.StatusBadRequest, "date is required (YYYY-MM-DD)", nil)
		return meal.Day{}, false
	}
	day, err := meal.ParseDay(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return meal.Day{}, false
	}
	return day, true
}

func (h *Handler) parseSlotRequest(w http.ResponseWriter, r *http.Request) (SlotRequest, meal.Day, meal.Slot, bool) {
	var req SlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, meal.Day{}, "", false
	}
	day, ok := h.parseDateParam(w, req.Date)
	if !ok {
		return req, meal.Day{}, "", false
	}
	slot, err := meal.ParseSlot(req.Slot)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid slot (use lunch or dinner)", err)
		return req, meal.Day{}, "", false
	}
	return req, day, slot, true
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case meal.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case meal.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case meal.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
