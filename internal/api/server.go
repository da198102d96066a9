package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amaumene/debridstrm/internal/api/handlers"
	"github.com/amaumene/debridstrm/internal/api/middleware"
	"github.com/amaumene/debridstrm/internal/config"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a new HTTP server. metrics may be nil, in which case /metrics is not served.
func NewServer(
	cfg *config.Config,
	summaries handlers.SummaryProvider,
	account handlers.AccountProvider,
	metrics http.Handler,
	logger *logrus.Logger,
) *Server {
	s := &Server{logger: logger}

	mux := http.NewServeMux()
	s.setupRoutes(mux, summaries, account, metrics)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux, summaries handlers.SummaryProvider, account handlers.AccountProvider, metrics http.Handler) {
	mux.Handle("/health", handlers.NewHealthHandler(summaries, s.logger))
	mux.Handle("/status", handlers.NewStatusHandler(summaries, account, s.logger))
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
}

// Handler returns the root handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and blocks until ctx is done or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
