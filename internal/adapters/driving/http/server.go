package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *slog.Logger

	// Services
	searchService driving.SearchService
	galaxyService driving.GalaxyService
	chatService   driving.ChatService
	docService    driving.DocumentService
	indexService  driving.IndexService
	taskService   driving.TaskService

	// Infrastructure
	linkSigner    driven.LinkSigner // Optional: downloads are public when nil
	checks        map[string]Pinger // Readiness checks by component name
	maxUploadSize int64
	defaultTopK   int
}

// Config holds server configuration
type Config struct {
	Host          string
	Port          int
	Version       string
	CORSOrigins   []string
	MaxUploadSize int64 // bytes
	DefaultTopK   int
	Logger        *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          8080,
		Version:       "dev",
		CORSOrigins:   []string{"*"},
		MaxUploadSize: 64 << 20,
	}
}

// Services are the driving ports the server exposes
type Services struct {
	Search    driving.SearchService
	Galaxy    driving.GalaxyService
	Chat      driving.ChatService
	Documents driving.DocumentService
	Indexer   driving.IndexService
	Tasks     driving.TaskService
	// LinkSigner verifies ?token= on file downloads (optional)
	LinkSigner driven.LinkSigner
	// Checks are pinged by /ready, e.g. "index", "queue", "embedder"
	Checks map[string]Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, svc Services) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = DefaultConfig().MaxUploadSize
	}
	checks := svc.Checks
	if checks == nil {
		checks = map[string]Pinger{}
	}

	s := &Server{
		router:        http.NewServeMux(),
		version:       cfg.Version,
		logger:        logger,
		searchService: svc.Search,
		galaxyService: svc.Galaxy,
		chatService:   svc.Chat,
		docService:    svc.Documents,
		indexService:  svc.Indexer,
		taskService:   svc.Tasks,
		linkSigner:    svc.LinkSigner,
		checks:        checks,
		maxUploadSize: maxUpload,
		defaultTopK:   cfg.DefaultTopK,
	}

	s.setupRoutes()

	// Recovery -> Logging -> CORS -> router
	s.handler = NewRecoveryMiddleware(logger).Handler(
		NewLoggingMiddleware(logger).Handler(
			NewCORSMiddleware(cfg.CORSOrigins).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute, // uploads
		WriteTimeout:      5 * time.Minute, // synchronous reindex
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	linkAuth := NewLinkAuthMiddleware(s.linkSigner)

	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwagger)

	// Retrieval
	s.router.HandleFunc("GET /api/v1/search", s.handleSearch)
	s.router.HandleFunc("GET /api/v1/galaxy", s.handleGalaxy)
	s.router.HandleFunc("POST /api/v1/chat", s.handleChat)

	// Sessions
	s.router.HandleFunc("POST /api/v1/sessions/{session}/reindex", s.handleReindex)
	s.router.HandleFunc("POST /api/v1/sessions/{session}/files", s.handleUpload)
	s.router.HandleFunc("DELETE /api/v1/sessions/{session}", s.handleDeleteSession)

	// Index bookkeeping
	s.router.HandleFunc("GET /api/v1/stats", s.handleStats)
	s.router.HandleFunc("GET /api/v1/documents", s.handleListDocuments)
	s.router.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)

	// File downloads (signed when a link secret is configured)
	s.router.Handle("GET /files/{session}/{name}",
		linkAuth.Authenticate(http.HandlerFunc(s.handleDownload)))
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr, "version", s.version)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
