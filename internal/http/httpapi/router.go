package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"webui/internal/http/handlers"
	"webui/internal/infra"
	"webui/internal/middleware"
)

type RouterOptions struct {
	Logger          infra.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Middlewares dasar
	r.Use(
		chimw.RequestID,
		middleware.RequestID,
		middleware.PeerAddr,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.Logger(opts.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/metrics", app.ServeMetrics)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Get("/v1/config", app.Config)

		r.Route("/v1/images", func(r chi.Router) {
			r.Post("/generations", app.ImagesGenerate)
			r.Post("/edits", app.ImagesEdit)
			r.Post("/info", app.ImageInfo)
		})

		r.Post("/v1/chat", app.Chat)
		r.Delete("/v1/chat", app.ClearChat)
		r.Post("/v1/vision", app.Vision)

		r.Route("/v1/token", func(r chi.Router) {
			r.Get("/", app.TokenStatus)
			r.Put("/", app.TokenSave)
			r.Delete("/", app.TokenDelete)
		})
	})

	r.Route("/embed", func(r chi.Router) {
		r.Get("/photopea", app.Photopea)
		r.Get("/whiteboard", app.Whiteboard)
	})

	return r
}
