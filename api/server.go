/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/organizations/{orgID}/*   All organization-scoped operations
  /metrics                       Prometheus scrape endpoint
  /api/reset                     Database reset (dev only)

SECURITY NOTE:
  The X-User-Role header is trusted as already resolved by an upstream
  gateway. Do not expose this server directly without one.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", roleHeader},
		AllowCredentials: true,
	}))

	r.Route("/api/organizations/{orgID}", func(r chi.Router) {
		// Due type catalog
		r.Route("/due-types", func(r chi.Router) {
			r.Get("/", h.ListDueTypes)
			r.Post("/", h.CreateDueType)
			r.Put("/{id}", h.UpdateDueType)
			r.Patch("/{id}/deactivate", h.DeactivateDueType)
			r.Delete("/{id}", h.DeleteDueType)
		})

		// Period lifecycle and accrual
		r.Route("/dues-periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Post("/", h.CreatePeriod)
			r.Get("/{periodID}", h.GetPeriod)
			r.Put("/{periodID}", h.UpdatePeriod)
			r.Delete("/{periodID}", h.DeletePeriod)
			r.Post("/{periodID}/accrue", h.AccruePeriod)
			r.Post("/{periodID}/close", h.ClosePeriod)
			r.Get("/{periodID}/unit-dues", h.ListUnitDues)
			r.Delete("/{periodID}/unit-dues/{dueID}", h.CancelUnitDue)
		})

		// Payments
		r.Route("/unit-dues/{dueID}/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.RecordPayment)
		})

		// Resident views
		r.Get("/my-dues", h.MyDues)
		r.Get("/my-payments", h.MyPayments)

		// Settings and roster
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
		r.Get("/units", h.ListUnits)
		r.Post("/units", h.ImportUnits)
	})

	// Prometheus scrape endpoint
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		h.Metrics.Registry, promhttp.HandlerOpts{}))

	// Dev-only full reset
	r.Post("/api/reset", func(w http.ResponseWriter, req *http.Request) {
		if !callerRole(req).CanManage() {
			writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		if err := h.Store.Reset(req.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
