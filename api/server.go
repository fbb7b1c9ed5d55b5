/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for station/self-service frontends

SECURITY NOTE:
  Credential verification is an external capability: callers arrive with
  a worker code or an already-verified card credential id. There is no
  authentication middleware here.
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
		// The single logical operation external collaborators call
		r.Post("/attendance", h.RecordAttendance)

		// Reporting reads
		r.Get("/rollups", h.QueryRollups)

		// Worker directory + per-worker views
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
			r.Get("/{id}/events", h.ListWorkerEvents)
			r.Get("/{id}/mappings", h.ListWorkerMappings)
			r.Post("/{id}/mapping", h.MapWorker)
			r.Post("/{id}/credentials", h.RegisterCredential)
		})

		// Establishment directory
		r.Route("/establishments", func(r chi.Router) {
			r.Get("/", h.ListEstablishments)
			r.Post("/", h.CreateEstablishment)
		})

		r.Post("/departments", h.CreateDepartment)

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollups/rebuild", h.RebuildRollups)
		})
	})

	return r
}
