package server

import (
	"net/http"
	"time"

	"sorare-coach/internal/config"
	"sorare-coach/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func NewRouter(h *Handler, cfg *config.Config, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.Use(middleware.RequestID(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(c.Handler)
	r.Use(middleware.Metrics)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.ProxyRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.ProxyRateLimit, time.Minute))
			}
			r.Post("/sorare", h.SorareProxy)
			r.Post("/openai", h.Coach)
		})

		r.Get("/stats", h.Stats)

		r.Post("/cards", h.SaveCard)
		r.Get("/cards", h.ListCards)
		r.Get("/cards/{id}", h.GetCard)
		r.Get("/players/{playerId}/cards", h.ListPlayerCards)

		r.Post("/performances", h.SavePerformance)
		r.Get("/performances", h.ListPerformances)
		r.Get("/performance/{playerId}", h.GetPerformance)

		r.Get("/users/{slug}/cards", h.UserCollection)

		r.Get("/gameweeks", h.ListGameWeeks)
		r.Get("/gameweeks/{slug}", h.GetGameWeek)

		r.Get("/ingest-runs", h.ListIngestRuns)
	})

	return r
}
