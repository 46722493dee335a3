package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"babygen/internal/http/handlers"
	"babygen/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Log),
		middleware.CORS(app.Config.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", app.SessionCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.SessionGet)
			r.Post("/upload", app.SessionUpload)
			r.Post("/select", app.SessionSelect)
			r.With(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)).
				Post("/intent", app.SessionIntent)
			r.Get("/artifact", app.SessionArtifact)
			r.Get("/history", app.SessionHistory)
		})
	})

	r.Get("/v1/outputs/zip", app.OutputsZip)

	return r
}
