// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the merged guide, run status and operational endpoints
// of the daemon.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/epgmerge/internal/api/middleware"
	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/history"
	"github.com/ManuGH/epgmerge/internal/jobs"
	xglog "github.com/ManuGH/epgmerge/internal/log"
)

// Refresher is the part of jobs.Runner the API drives.
type Refresher interface {
	Trigger(ctx context.Context) (string, error)
	Running() bool
	Last() *jobs.Status
	LastSuccess() time.Time
}

// Deps holds the collaborators of the server.
type Deps struct {
	Config  func() config.AppConfig
	Runner  Refresher
	History history.Store
	Health  *health.Manager
	Version string
	// RunContext parents runs triggered over HTTP so they outlive the request.
	RunContext context.Context
	// TracingService enables request tracing when non-empty.
	TracingService string
}

// Server is the daemon HTTP server.
type Server struct {
	deps    Deps
	handler http.Handler
	srv     *http.Server
}

// New builds the server and its routes. The refresh rate limit is taken from
// the configuration at construction time.
func New(deps Deps) *Server {
	if deps.History == nil {
		deps.History = history.NewNoopStore()
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(deps.Version)
	}
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}
	s := &Server{deps: deps}
	s.handler = s.routes()
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.deps.TracingService,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	// the guide is large and compresses well
	r.Method(http.MethodGet, "/xmltv.xml", gzhttp.GzipHandler(http.HandlerFunc(s.handleXMLTV)))
	r.Method(http.MethodHead, "/xmltv.xml", http.HandlerFunc(s.handleXMLTV))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleRuns)
		r.With(middleware.RefreshRateLimit(s.deps.Config().API.RefreshPerMinute)).
			Post("/refresh", s.handleRefresh)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "")
	})
	return r
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	logger := xglog.WithComponent("api")
	logger.Info().
		Str(xglog.FieldEvent, "api.listen").
		Str("addr", ln.Addr().String()).
		Msg("HTTP API listening")

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
