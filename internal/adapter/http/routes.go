package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hooktrace/hooktrace/internal/config"
	"github.com/hooktrace/hooktrace/internal/middleware"
)

// NewRouter builds the chi router with the full middleware stack and
// all routes mounted.
func NewRouter(h *Handlers, cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(Logger)
	r.Use(CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.APIKey(cfg.Ingest.APIKey))
	r.Use(middleware.TeamID)

	MountRoutes(r, h, cfg)
	return r
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, cfg *config.Config) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ws", h.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		rl := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
		rl.StartCleanup(time.Minute, 10*time.Minute)
		r.With(rl.Handler).Post("/events", h.HandleIngest)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/overview", h.HandleOverview)
			r.Get("/users", h.HandleUserStats)
			r.Get("/users/{id}/tools", h.HandleUserTopTools)
			r.Get("/users/{id}/timeline", h.HandleUserTimeline)
			r.Get("/tools", h.HandleToolStats)
			r.Get("/tools/trend", h.HandleToolTrend)
			r.Get("/timeline", h.HandleTimeline)
			r.Get("/heatmap", h.HandleHeatmap)
			r.Get("/sessions", h.HandleSessions)
			r.Get("/stop-reasons", h.HandleStopReasons)
			r.Get("/limits/hourly", h.HandleLimitsByHour)
			r.Get("/projects", h.HandleProjects)
			r.Get("/adoption", h.HandleAdoption)
			r.Get("/monthly-active", h.HandleMonthlyActive)
		})
	})
}
