/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mini-app frontend

ROUTE GROUPS:
  /api/distributions  Commission distribution
  /api/users/*        Graph, ledger, balances, diagnostics
  /api/batches/*      Batch audit reads
  /api/admin/*        Manual stale-batch sweep
  /api/scenarios/*    Demo referral trees

SECURITY NOTE:
  No authentication middleware. The engine is an internal service; the
  Telegram-auth gateway in front of it owns identity.

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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/distributions", h.Distribute)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/batches", h.GetUserBatches)
			r.Get("/{id}/chain", h.GetChain)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Get("/{id}", h.GetBatch)
			r.Get("/{id}/entries", h.GetBatchEntries)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reap", h.ReapStale)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
