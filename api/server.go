/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the calendar frontend

ROUTE GROUPS:
  /api/eligibility            Request-window evaluation
  /api/divisions/*            Allotments and pending queues
  /api/requests/*             Leave request lifecycle
  /api/members/*              Member stats
  /api/admin/*                Directory administration
  /health                     Liveness probe

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Member-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/eligibility", h.GetEligibility)

		// Division-scoped routes
		r.Route("/divisions/{division}", func(r chi.Router) {
			r.Get("/allotments", h.GetMonthAllotments)
			r.Get("/allotments/{date}", h.GetDayAllotment)
			r.Put("/allotments/{date}", h.SetDayAllotment)
			r.Get("/requests/pending", h.ListPendingRequests)
		})

		// Request lifecycle routes
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/deny", h.DenyRequest)
			r.Post("/{id}/pay-in-lieu", h.PayInLieu)
			r.Post("/{id}/cancellation/confirm", h.ConfirmCancellation)
			r.Post("/{id}/cancellation/reject", h.RejectCancellation)
		})

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/{id}/stats", h.GetStats)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Put("/members/{id}", h.UpsertMember)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
