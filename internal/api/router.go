package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/getgoodtape/videoproc/internal/api/handler"
	mw "github.com/getgoodtape/videoproc/internal/api/middleware"
)

// Handlers groups the HTTP handlers mounted by NewRouter. Usage and Metrics
// may be nil.
type Handlers struct {
	Media       *handler.MediaHandler
	Files       *handler.FilesHandler
	Diagnostics *handler.DiagnosticsHandler
	Usage       *handler.UsageHandler
	Health      *handler.HealthHandler
	Metrics     http.Handler
}

// RouterConfig holds router-level settings.
type RouterConfig struct {
	// APIKey protects /api/v1 when set.
	APIKey string
	// RequestTimeout bounds every request; zero disables the bound. It must
	// cover the convert budget or the last candidate paths never run.
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, cfg RouterConfig, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(mw.CORS)

	// Probes and metrics (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		r.Get("/stats", h.Health.Stats)

		r.Post("/validate", h.Media.Validate)
		r.Post("/convert", h.Media.Convert)
		r.Get("/files/{filename}", h.Files.Serve)

		r.Get("/diagnostics", h.Diagnostics.Get)
		r.Post("/diagnostics/probe", h.Diagnostics.Probe)

		if h.Usage != nil {
			r.Get("/usage", h.Usage.Get)
		}
	})

	return r
}
