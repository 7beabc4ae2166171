// Package exporter provides an HTTP server for Prometheus metrics and
// health endpoints, shared by both the proxy and the controller.
package exporter

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// Server is an HTTP server that exposes Prometheus metrics and health
// endpoints.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	ready      atomic.Bool
}

// New creates a new exporter server listening on the given address.
func New(addr string, logger *zap.Logger) *Server {
	s := &Server{
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.Handle(constants.PathMetrics, promhttp.Handler())
	mux.HandleFunc(constants.PathHealthz, s.handleHealthz)
	mux.HandleFunc(constants.PathReadyz, s.handleReadyz)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  constants.HTTPReadTimeout,
		WriteTimeout: constants.HTTPWriteTimeout,
		IdleTimeout:  constants.HTTPIdleTimeout,
	}

	return s
}

// SetReady marks the server as ready to serve traffic.
func (s *Server) SetReady() {
	s.ready.Store(true)
}

// Run starts the HTTP server. It blocks until the context is cancelled or
// the server encounters a fatal error.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting metrics exporter",
		zap.String("addr", s.httpServer.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down metrics exporter")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.HTTPShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("metrics exporter shutdown error", zap.Error(err))
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics exporter failed: %w", err)
	}

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready\n"))
	}
}
