package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/whisper-web/backend/internal/api/handlers"
	"github.com/whisper-web/backend/internal/api/middleware"
	"github.com/whisper-web/backend/internal/auth"
	"github.com/whisper-web/backend/internal/config"
	"github.com/whisper-web/backend/internal/db"
	"github.com/whisper-web/backend/internal/job"
	"github.com/whisper-web/backend/web"
)

func NewRouter(database *db.Database, jwtService *auth.JWTService, cfg *config.Config, queue *job.Queue) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))

	// Handlers
	authHandler := handlers.NewAuthHandler(database, jwtService)
	jobsHandler := handlers.NewJobsHandler(queue, database, cfg.UploadPath)
	artifactsHandler := handlers.NewArtifactsHandler(queue, cfg.OutputPath)
	optionsHandler := handlers.NewOptionsHandler(database)
	settingsHandler := handlers.NewSettingsHandler(database)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Get("/health", handlers.Health)
		r.With(loginLimiter.Handler, middleware.MaxBodySize(4096)).
			Post("/auth/login", authHandler.Login)

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))

			r.Get("/auth/me", authHandler.Me)

			r.Get("/options", optionsHandler.GetOptions)

			// Runs
			r.Post("/jobs", jobsHandler.Create)
			r.Get("/jobs", jobsHandler.List)
			r.Get("/jobs/{id}", jobsHandler.Get)
			r.Delete("/jobs/{id}", jobsHandler.Cancel)
			r.Post("/jobs/{id}/retry", jobsHandler.Retry)

			// Artifacts
			r.Get("/jobs/{id}/transcript.txt", artifactsHandler.Transcript)
			r.Get("/jobs/{id}/subtitles.srt", artifactsHandler.Subtitles)

			// Settings (admin only)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))
				r.Get("/settings", settingsHandler.GetSettings)
				r.With(middleware.MaxBodySize(64 << 10)).
					Put("/settings", settingsHandler.UpdateSettings)
			})
		})
	})

	// Embedded browser UI
	r.Get("/", web.Index)

	return r
}
