// Package api provides the REST API server for the data integration
// platform: sync triggers, job queries, live status streaming, and the
// health surfaces.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/pipeline"
	"github.com/smill0791/data-integration-platform/internal/queue"
	"github.com/smill0791/data-integration-platform/internal/status"
)

// Producer is the queue surface the trigger handler needs.
type Producer interface {
	SendSyncRequest(ctx context.Context, msg queue.DispatchMessage) error
}

// ReadinessChecker verifies the storage backend can serve requests.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Dependencies are the collaborators the API routes dispatch to.
// Producer may be nil when the dispatch mode is direct.
type Dependencies struct {
	Registry     *jobs.Registry
	Router       *pipeline.Router
	Producer     Producer
	Publisher    *status.Publisher
	Readiness    ReadinessChecker
	DispatchMode string
}

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler mounts a metrics endpoint at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// NewServer creates and configures the HTTP router with the given
// dependencies and options
func NewServer(deps Dependencies, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", HealthRouter(deps.Readiness))
	r.Mount("/api/integrations", Router(deps))

	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debugf("HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}
