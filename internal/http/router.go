// Package httpapi assembles the chi router for the studio API.
package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

// NewRouter wires the middleware stack and all API routes.
func NewRouter(app *handlers.App, cfg *infra.Config) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute, "/api/events", "/outputs/"))
	r.Use(middleware.CORS([]string{"http://localhost:3000", "http://localhost:" + cfg.Port}))
	r.Use(middleware.Locale(cfg.DefaultLocale))

	r.Get("/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", app.StreamEvents)
		r.Get("/prompts/top", app.TopPrompts)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/", app.ListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetJob)
				r.Get("/download", app.DownloadJob)
				r.Post("/feedback", app.SaveFeedback)
				r.Get("/feedback", app.GetFeedback)
				r.Post("/refine", app.RefineImage)
			})
		})
	})

	// Generated images are served straight off the output directory.
	fileServer := stdhttp.StripPrefix("/outputs/", stdhttp.FileServer(stdhttp.Dir(app.Files.BasePath())))
	r.Get("/outputs/*", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		fileServer.ServeHTTP(w, req)
	})

	return r
}
