// Package server runs the HTTP listeners of the web client and the API
// service and ties them to the application lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// defaultShutdownTimeout is used when the config leaves it unset
	defaultShutdownTimeout = 5 * time.Second
)

// HTTPServer is one named HTTP listener
type HTTPServer struct {
	name    string
	cfg     *config.ServerConfig
	server  *http.Server
	addr    string
	onError func(error)
}

// NewHTTPServer creates a server for handler listening on cfg.Addr()
func NewHTTPServer(name string, cfg *config.ServerConfig, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		name: name,
		cfg:  cfg,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		onError: func(error) {},
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors go to the error callback.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen on %s: %w", s.name, s.server.Addr, err)
	}
	s.addr = ln.Addr().String()

	go func() {
		logger.Info("Starting server",
			zap.String("service", s.name),
			zap.String("address", s.addr),
		)

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.String("service", s.name), zap.Error(err))
			s.onError(err)
		}
	}()
	return nil
}

// Stop drains in-flight requests for at most the configured shutdown timeout
func (s *HTTPServer) Stop(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	logger.Info("Shutting down server",
		zap.String("service", s.name),
		zap.Duration("timeout", timeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address once started
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Register hooks srv into the fx lifecycle. A serve error shuts the
// application down.
func Register(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *HTTPServer) {
	srv.onError = func(error) {
		if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
			logger.Error("Failed to trigger shutdown", zap.Error(err))
		}
	}
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
}
