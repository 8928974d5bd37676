package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: app.Logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: app.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.HealthHandler)
		r.Get("/captures", app.ListCapturesHandler)
		r.Post("/captures", app.UploadCaptureHandler)
		r.Get("/captures/{id}", app.GetCaptureHandler)
	})

	fileServer := http.FileServer(http.Dir(app.Storage.Dir()))
	r.Handle(app.StaticPrefix+"/*", http.StripPrefix(app.StaticPrefix, fileServer))

	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics.Handler())
	}

	return r
}
