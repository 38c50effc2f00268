package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the administrative router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Post("/batch", h.CreateJobBatch)
			r.Get("/{id}", h.GetJob)
		})

		r.Route("/mailboxes/{id}", func(r chi.Router) {
			r.Route("/warmup", func(r chi.Router) {
				r.Get("/", h.GetWarmupSnapshot)
				r.Post("/start", h.StartWarmup)
				r.Post("/stop", h.StopWarmup)
				r.Post("/pause", h.PauseWarmup)
				r.Post("/resume", h.ResumeWarmup)
			})

			r.Route("/throttle", func(r chi.Router) {
				r.Get("/", h.GetThrottleUsage)
				r.Put("/", h.SetManualThrottle)
				r.Delete("/", h.ClearManualThrottle)
			})
		})

		r.Post("/warmup/maintenance", h.RunMaintenance)
		r.Post("/processor/run", h.RunProcessor)
	})

	return r
}
