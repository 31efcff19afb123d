// Package api provides the read API: an HTTP server over the persistence
// layer plus the Prometheus exposition endpoint.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/repository"
)

// Repositories bundles the data access the API serves from.
type Repositories struct {
	Channels     repository.ChannelRepository
	Recordings   repository.RecordingRepository
	Segments     repository.SegmentRepository
	Transcripts  repository.TranscriptRepository
	VisualEvents repository.VisualEventRepository
}

// Server represents the HTTP server.
type Server struct {
	config     config.APIConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with the given configuration and
// registers all read API operations. The version parameter is used in the
// OpenAPI spec and should match the build version.
func NewServer(cfg config.APIConfig, repos Repositories, reg *prometheus.Registry, metrics *observability.APIMetrics, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(RequestID)
	router.Use(Recovery(logger))
	router.Use(Logging(logger))
	if metrics != nil {
		router.Use(Metrics(metrics))
	}

	humaConfig := huma.DefaultConfig("mobasher API", version)
	humaConfig.Info.Description = "Read API over the broadcast monitoring pipeline"
	// Keep response bodies as declared; no injected $schema links.
	// The link transformer is installed via CreateHooks, not Transformers.
	humaConfig.CreateHooks = nil
	humaConfig.Transformers = nil

	api := humachi.New(router, humaConfig)

	newHealthHandler().Register(api)
	newChannelHandler(repos.Channels).Register(api)
	newRecordingHandler(repos.Recordings).Register(api)
	newSegmentHandler(repos.Segments).Register(api)
	newTranscriptHandler(repos.Transcripts, repos.Segments).Register(api)
	newVisualEventHandler(repos.VisualEvents).Register(api)

	if reg != nil {
		router.Method("GET", "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return &Server{
		config: cfg,
		router: router,
		api:    api,
		logger: logger,
	}
}

// API returns the Huma API instance for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the Chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
