// Package router assembles the HTTP surface of the tutoring platform's
// post-session API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/tutoring-ai-platform/internal/http/middleware"
	"github.com/wolfman30/tutoring-ai-platform/internal/postsession"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Sessions           *postsession.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AnalyzeRateLimit caps analyze requests per second per IP.
	// Zero disables rate limiting.
	AnalyzeRateLimit float64
	AnalyzeBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Sessions.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.AnalyzeRateLimit > 0 {
			v1.With(httpmiddleware.RateLimit(cfg.AnalyzeRateLimit, cfg.AnalyzeBurst)).
				Post("/sessions/{sessionID}/analyze", cfg.Sessions.Analyze)
		} else {
			v1.Post("/sessions/{sessionID}/analyze", cfg.Sessions.Analyze)
		}
		v1.Get("/jobs/{jobID}", cfg.Sessions.GetJob)
	})

	return r
}
