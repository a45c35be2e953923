/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Secure:     Security headers (unrolled/secure)
  5. CORS:       Cross-origin requests for frontend
  6. Rate limit: Per-IP request budget (go-chi/httprate), /api only

ROUTE GROUPS:
  /api/tuition-fees/*   Fee list, paid updates, dashboard totals
  /api/salaries/*       Teacher salaries
  /api/finance/*        Finance summary and chart
  /api/scenarios/*      Demo scenarios
  /                     Endpoint index

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimit      int // requests per minute per IP, 0 disables
	Production     bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        opts.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !opts.Production,
	}).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.Limit(opts.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		r.Route("/tuition-fees", func(r chi.Router) {
			r.Get("/", h.ListTuitionFees)
			r.Patch("/", h.UpdateTuitionFee)
			r.Get("/late-payment", h.GetLatePayment)
			r.Get("/paid-amount", h.GetPaidAmount)
			r.Get("/to-be-paid", h.GetToBePaid)
			r.Get("/students/{id}", h.GetStudentFees)
		})

		r.Route("/salaries", func(r chi.Router) {
			r.Get("/", h.ListSalaries)
			r.Post("/", h.AddSalary)
			r.Get("/teachers/{id}", h.GetTeacherSalary)
			r.Get("/teachers/{id}/earnings", h.GetTeacherEarnings)
		})

		r.Route("/finance", func(r chi.Router) {
			r.Get("/", h.GetFinance)
			r.Get("/chart", h.GetChartData)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Tuition Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Tuition Engine API</h1>
<ul>
<li><a href="/api/tuition-fees">/api/tuition-fees</a> - Tuition fee list</li>
<li><a href="/api/salaries">/api/salaries</a> - Teacher salaries (current month)</li>
<li><a href="/api/finance?month_count=3">/api/finance</a> - Finance summary</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
