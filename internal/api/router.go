package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fanout/flychat/internal/api/middleware"
	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/handlers"
)

// DefaultMaxBodySize caps request bodies when no limit is configured.
const DefaultMaxBodySize = 8 * 1024

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, maxBodySize int64) *chi.Mux {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - browsers embed rooms from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID", "Cache-Control"},
		ExposedHeaders:   []string{fanout.HeaderGripLink},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Get("/messages/", h.GetMessages)
		r.Post("/messages/", h.PostMessage)
	})

	return r
}
