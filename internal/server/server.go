// Package server provides the HTTP API for semantic search over ingested documents.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/config"
	"github.com/nrcae/ai-s3-search/internal/models"
)

// Service is the search facade the server exposes.
type Service interface {
	Search(ctx context.Context, query models.SearchQuery) ([]models.Hit, error)
	Status() models.Status
	TriggerIngestion() error
}

// Option configures a Server.
type Option func(*Server)

// WithStatusInfo adds static configuration details to the status response.
func WithStatusInfo(info map[string]any) Option {
	return func(s *Server) {
		s.info = info
	}
}

// WithDiskPaths reports the on-disk size of paths in the status response.
func WithDiskPaths(paths ...string) Option {
	return func(s *Server) {
		s.diskPaths = paths
	}
}

// Server is the HTTP server for the search API.
type Server struct {
	service   Service
	config    *config.ServerConfig
	logger    *zap.Logger
	info      map[string]any
	diskPaths []string
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc Service, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: svc,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearchGet)
		r.Post("/search", s.handleSearchPost)
		r.Get("/status", s.handleStatus)
		r.Post("/ingest", s.handleIngest)
	})
	// Unversioned aliases.
	r.Get("/search", s.handleSearchGet)
	r.Get("/status", s.handleStatus)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
