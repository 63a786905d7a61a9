/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. RealIP:     Client address behind a proxy
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Instrument: Prometheus request metrics
  6. CORS:       Cross-origin requests for frontend

  Booking and deposit POSTs additionally run through Idempotent.

ROUTE GROUPS:
  /healthz              Liveness and store ping
  /metrics              Prometheus scrape
  /api/resources/*      Court catalog
  /api/calendar         Public calendar
  /api/members/*        Members, wallet, bookings
  /api/admin/*          Ledger view, deposit approval, completion sweep
  /api/scenarios/*      Demo data

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultCORSOrigins is used when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderIdempotencyKey},
		ExposedHeaders:   []string{HeaderReplayed},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	idem := Idempotent(h.Idempotency)

	r.Route("/api", func(r chi.Router) {
		// Court routes
		r.Route("/resources", func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Post("/", h.CreateResource)
			r.Put("/{id}", h.UpdateResource)
			r.Delete("/{id}", h.DeleteResource)
		})

		r.Get("/calendar", h.GetCalendar)

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Post("/", h.CreateMember)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetMember)
				r.Get("/transactions", h.GetTransactions)
				r.With(idem).Post("/deposits", h.RequestDeposit)
				r.Get("/bookings", h.ListMemberBookings)
				r.With(idem).Post("/bookings", h.CreateBooking)
				r.With(idem).Post("/bookings/recurring", h.CreateRecurringBooking)
				r.With(idem).Post("/bookings/{bookingID}/cancel", h.CancelBooking)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/transactions", h.ListAllTransactions)
			r.Post("/deposits/{id}/approve", h.ApproveDeposit)
			r.Post("/deposits/{id}/reject", h.RejectDeposit)
			r.Post("/complete", h.TriggerCompletion)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
