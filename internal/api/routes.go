package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the dashboard routes and middleware chain.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// The dashboard is a static SPA served from anywhere on the intranet.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	// Feedback links land here from chat clients; both verbs carry the same
	// signed parameters.
	r.Get("/api/feedback", h.Feedback)
	r.Post("/api/feedback", h.Feedback)

	r.Route("/api", func(r chi.Router) {
		r.Get("/opinions", h.ListOpinions)
		r.Get("/opinions/{id}", h.GetOpinion)
		r.Get("/search", h.Search)

		r.Get("/stats", h.Stats)
		r.Get("/stats/trend", h.Trend)

		r.Post("/ai/summary", h.AISummary)
		r.Post("/ai/insight", h.AIInsight)

		r.Get("/notification/suppress_keywords", h.GetSuppressKeywords)
		r.Post("/notification/suppress_keywords", h.SetSuppressKeywords)

		r.Post("/report/generate", h.GenerateReport)
		r.Get("/report/download/{filename}", h.DownloadReport)
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write([]byte(`{"status":"ok"}`))
}
