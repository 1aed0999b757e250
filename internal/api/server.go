// Package api exposes the operational HTTP surface of a crawl run: a health
// probe and the Prometheus metrics endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server hosts /healthz and /metrics for the duration of a run.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the ops server on the given port.
func NewServer(port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	return nil
}
