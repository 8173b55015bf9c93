package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the handlers. Job runs are synchronous, so the request
// timeout must cover a full crawl.
func NewRouter(h *Handlers, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", h.GetStats)

		r.Route("/comparisons", func(r chi.Router) {
			r.Get("/", h.ListComparisons)
			r.Get("/top-competitive", h.TopCompetitive)
			r.Get("/needs-adjustment", h.NeedsAdjustment)
		})

		r.Get("/best/suppliers", h.BestSuppliers)
		r.Get("/best/competitors", h.BestCompetitors)

		r.Post("/jobs/{job}", h.RunJob)
		r.Get("/proxies", h.Proxies)
	})

	return r
}
