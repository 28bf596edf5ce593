/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/employees/*   Employees, deductions, paystubs, year end per employee
  /api/deductions/*  Deduction deactivation
  /api/paystubs/*    Paystub lookup and PDF
  /api/payroll/*     Bulk payroll runs
  /api/year-end/*    Company-wide year-end summaries
  /health            Liveness
  /metrics           Prometheus scrape endpoint (when enabled)

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

// RouterOptions configures the parts of the router that vary by deployment.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        http.Handler // nil disables /metrics
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEmployee)
				r.Put("/", h.UpdateEmployee)
				r.Delete("/", h.DeleteEmployee)
				r.Post("/ytd/rollover", h.RolloverYTD)

				r.Get("/deductions", h.ListDeductions)
				r.Post("/deductions", h.CreateDeduction)

				r.Get("/paystubs", h.ListPaystubs)
				r.Post("/paystubs", h.GeneratePaystub)
				r.Post("/paystubs/preview", h.PreviewPaystub)

				r.Get("/year-end/{year}", h.GetYearEnd)
			})
		})

		r.Delete("/deductions/{id}", h.DeactivateDeduction)

		r.Route("/paystubs", func(r chi.Router) {
			r.Get("/{id}", h.GetPaystub)
			r.Get("/{id}/pdf", h.GetPaystubPDF)
		})

		r.Post("/payroll/runs", h.RunPayroll)
		r.Get("/year-end/{year}", h.ListYearEnd)
	})

	return r
}
