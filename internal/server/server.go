// Package server exposes the archive over HTTP: media for the WordPress importer to sideload,
// the generated export, archive search and metrics.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/lotuswxr/internal/config"
	"github.com/hyperjump/lotuswxr/internal/keyword"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/internal/wxr"
	"github.com/hyperjump/lotuswxr/pkg/metrics"
	"go.uber.org/zap"
)

// Searcher runs queries over the archive index.
type Searcher interface {
	Search(ctx context.Context, q *models.SearchQuery, opts *keyword.SearchOptions) (*models.SearchResponse, error)
	DocCount() (uint64, error)
}

// Exporter renders the archive as a WXR document.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) (*wxr.Summary, error)
}

// Server is the HTTP server for one archive.
type Server struct {
	archiveDir   string
	searcher     Searcher
	exporter     Exporter
	metrics      *metrics.Metrics
	config       *config.ServerConfig
	defaultLimit int
	logger       *zap.Logger
	server       *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithSearcher enables the search endpoints.
func WithSearcher(s Searcher) Option {
	return func(srv *Server) { srv.searcher = s }
}

// WithExporter enables /export.xml.
func WithExporter(e Exporter) Option {
	return func(srv *Server) { srv.exporter = e }
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithDefaultLimit sets the hit count used when a search request names none.
func WithDefaultLimit(n int) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.defaultLimit = n
		}
	}
}

// NewServer creates a server for the archive at archiveDir.
func NewServer(archiveDir string, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		archiveDir:   archiveDir,
		config:       cfg,
		defaultLimit: 10,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/media/{name}", s.handleMedia)
	r.Head("/media/{name}", s.handleMedia)
	r.Get("/export.xml", s.handleExport)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))
		r.Get("/search", s.handleSearchGet)
		r.Post("/search", s.handleSearchPost)
		r.Get("/status", s.handleStatus)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr), zap.String("archive", s.archiveDir))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
