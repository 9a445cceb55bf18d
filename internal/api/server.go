package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/auth"
	"github.com/train-control/tcc/internal/control"
)

// Options configures a Server. Control is required.
type Options struct {
	Control   control.Port
	Telemetry TelemetryPort
	// Auth enables bearer token checks when set.
	Auth *auth.Middleware
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// ConnectTimeout bounds how long POST /connect waits for the outcome.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Version        string
	Logger         *zap.Logger
}

// Server represents the HTTP API server.
type Server struct {
	opts       Options
	httpServer *http.Server
	handler    http.Handler
	startTime  time.Time
	logger     *zap.Logger
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	s := &Server{
		opts:      opts,
		startTime: time.Now(),
		logger:    opts.Logger.Named("api"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on addr until Stop. It returns nil after a graceful stop.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	s.logger.Info("HTTP API listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
