// Package core is the HTTP chassis for the PawTrail API. It builds a chi
// router that serves both a local listener and API Gateway through the
// Lambda proxy adapter, and owns the cross-cutting middleware, response
// envelopes and request validation.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pawtrail/internal/config"
)

// MetricsCollector records per-request telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler group under /v1.
type RouteRegistrar func(r chi.Router)

// Server holds the API's shared dependencies.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// RateLimitStore throttles prediction creation per client IP. Nil
	// disables throttling.
	RateLimitStore RateLimitStore

	HealthProbes      []HealthProbe
	V1RouteRegistrars []RouteRegistrar

	// Closers run on Shutdown in order (database pool etc.).
	Closers []func()

	router *chi.Mux
}

// NewServer validates the required dependencies. Call MountRoutes after
// registering route groups and probes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, c := range s.Closers {
		c()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
