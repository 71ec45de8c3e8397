package httpapi

import (
	"net/http"
	"time"

	"enhancer/internal/http/handlers"
	"enhancer/internal/infra"
	"enhancer/internal/infra/geoip"
	"enhancer/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts every endpoint of the API. countries is optional.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger, countries geoip.CountryResolver) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger, countries),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	// Signed links are the credential here; browsers open them without a token.
	r.Get("/v1/files/*", app.ServeFile)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret, cfg.AllowAnonymous))

		r.Get("/v1/enhancements", app.EnhancementMenu)
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).
			Post("/v1/enhancements/generate", app.Generate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCaller)
			r.Get("/v1/enhancements/tasks/{task_id}", app.TaskStatus)
			r.Get("/v1/quota", app.QuotaStatus)
			r.Get("/v1/history", app.ListHistory)
			r.Get("/v1/history/archive", app.HistoryArchive)
		})
	})

	return r
}
