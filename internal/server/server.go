// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

// WatchService manages the watched inbox directories. *watcher.Watcher implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the kotae API.
type Server struct {
	rag        *rag.Service
	journal    storage.Journal
	watch      WatchService
	config     *config.Config
	configPath string
	configMu   sync.Mutex
	embedder   string
	generator  string
	logger     *zap.Logger
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables the journal endpoints.
func WithJournal(j storage.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithWatch enables the watch endpoints. When configPath is set, directory changes are
// saved back to the config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// WithProviderNames sets the embedder and generator names reported by the status endpoint.
func WithProviderNames(embedder, generator string) Option {
	return func(s *Server) {
		s.embedder = embedder
		s.generator = generator
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server for svc. cfg supplies the listen address and request timeout.
func NewServer(svc *rag.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		rag:    svc,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with all routes and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.Server.RequestTimeout))

	r.Post("/ingest", s.handleIngest)
	r.Post("/ask", s.handleAsk)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/passages/{id}", s.handleGetPassage)
		r.Get("/answers", s.handleListAnswers)
		r.Get("/ingestions", s.handleListIngestions)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
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
