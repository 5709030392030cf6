/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/dinehall/meal-engine/meal"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents a diner in API responses.
type UserDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Cohort         string `json:"cohort,omitempty"`
	Category       string `json:"category,omitempty"`
	Balance        string `json:"balance"`
	TotalMealCount int    `json:"total_meal_count"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreateUserRequest is the request to register a user.
type CreateUserRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Cohort   string `json:"cohort"`
	Category string `json:"category"`
}

// RecordDTO represents one day's meal record.
type RecordDTO struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	Date            string   `json:"date"`
	Meal            string   `json:"meal"`
	AdditionalItems []string `json:"additional_items,omitempty"`
	DailyCount      int      `json:"daily_count"`
	LunchServed     bool     `json:"lunch_served"`
	DinnerServed    bool     `json:"dinner_served"`
	IsExtra         bool     `json:"is_extra"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// MealChangeRequest is a self-service or staff meal update.
type MealChangeRequest struct {
	Date            string   `json:"date"` // ISO date
	Meal            string   `json:"meal"` // off|lunch|dinner|both
	AdditionalItems []string `json:"additional_items,omitempty"`
}

// SlotRequest targets one meal slot on one day (extra grant, serve).
type SlotRequest struct {
	Date string `json:"date"`
	Slot string `json:"slot"` // lunch|dinner
}

// BulkExtraResponse reports how many users a bulk grant affected.
type BulkExtraResponse struct {
	Date     string `json:"date"`
	Slot     string `json:"slot"`
	Affected int    `json:"affected"`
}

// UnservedDTO is one user's outstanding slots for a day.
type UnservedDTO struct {
	UserID          string   `json:"user_id"`
	Name            string   `json:"name"`
	Cohort          string   `json:"cohort,omitempty"`
	Category        string   `json:"category,omitempty"`
	Meal            string   `json:"meal"`
	Pending         []string `json:"pending"`
	IsExtra         bool     `json:"is_extra,omitempty"`
	AdditionalItems []string `json:"additional_items,omitempty"`
}

// RolloverRequest optionally names the day to roll into (default today).
type RolloverRequest struct {
	Date string `json:"date,omitempty"`
}

// RolloverResponse summarizes a rollover run.
type RolloverResponse struct {
	Date    string `json:"date"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// BalanceAdjustmentRequest is a signed monetary adjustment.
type BalanceAdjustmentRequest struct {
	Delta  string `json:"delta"` // decimal string, e.g. "-12.50"
	Reason string `json:"reason,omitempty"`
}

// RecountResponse reports an administrative counter override.
type RecountResponse struct {
	UserID   string `json:"user_id"`
	OldTotal int    `json:"old_total"`
	NewTotal int    `json:"new_total"`
}

// DriftDTO is one user failing the counter audit.
type DriftDTO struct {
	UserID   string `json:"user_id"`
	Stored   int    `json:"stored"`
	Computed int    `json:"computed"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u meal.User) UserDTO {
	return UserDTO{
		ID:             u.ID,
		Name:           u.Name,
		Cohort:         u.Cohort,
		Category:       u.Category,
		Balance:        u.Balance.String(),
		TotalMealCount: u.TotalMealCount,
		CreatedAt:      u.CreatedAt.Format(time.RFC3339),
	}
}

func toRecordDTO(r meal.Record) RecordDTO {
	return RecordDTO{
		ID:              r.ID,
		UserID:          r.UserID,
		Date:            r.Day.String(),
		Meal:            string(r.Meal),
		AdditionalItems: r.AdditionalItems,
		DailyCount:      r.DailyCount,
		LunchServed:     r.LunchServed,
		DinnerServed:    r.DinnerServed,
		IsExtra:         r.IsExtra,
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
}

func toRecordDTOs(recs []meal.Record) []RecordDTO {
	dtos := make([]RecordDTO, len(recs))
	for i, r := range recs {
		dtos[i] = toRecordDTO(r)
	}
	return dtos
}

func toUnservedDTO(p meal.PendingServing) UnservedDTO {
	pending := make([]string, len(p.Pending))
	for i, s := range p.Pending {
		pending[i] = string(s)
	}
	return UnservedDTO{
		UserID:          p.UserID,
		Name:            p.Name,
		Cohort:          p.Cohort,
		Category:        p.Category,
		Meal:            string(p.Meal),
		Pending:         pending,
		IsExtra:         p.IsExtra,
		AdditionalItems: p.AdditionalItems,
	}
}
