/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/users/*   Self-service and user queries
  /api/staff/*   Serving line and extra grants
  /api/admin/*   Rollover, balances, counter audit, reports

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/records", h.ListUserRecords)
			r.Get("/{id}/meal", h.GetUserMeal)
			r.Put("/{id}/meal", h.UpdateMeal)
		})

		// Staff routes
		r.Route("/staff", func(r chi.Router) {
			r.Put("/users/{id}/meal", h.StaffUpdateMeal)
			r.Post("/users/{id}/extra", h.GrantExtra)
			r.Post("/users/{id}/served", h.MarkServed)
			r.Post("/extra", h.GrantExtraForAll)
			r.Get("/unserved", h.ListUnserved)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover", h.TriggerRollover)
			r.Post("/users/{id}/balance", h.AdjustBalance)
			r.Post("/users/{id}/recount", h.RecountUser)
			r.Get("/drift", h.ListDrift)
			r.Get("/report", h.Report)
		})
	})

	return r
}
