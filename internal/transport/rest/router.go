package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

type RouterDeps struct {
	Handler *Handler

	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	r.Use(SecurityHeaders)

	// Beacons fire cross-origin from arbitrary customer sites.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	if d.RLEnabled {
		r.Use(httprate.LimitByIP(d.RLLimit, d.RLWindow))
	}

	r.Get("/healthz", d.Handler.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", d.Handler.Ping)

		r.Post("/events", d.Handler.Ingest)
		r.Get("/events", d.Handler.ListEvents)
		r.Get("/summary", d.Handler.Summary)
	})

	return r
}
