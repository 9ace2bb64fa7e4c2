// Package server exposes the bridge's health, status and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/plcsnmp/plcsnmp/internal/api/common"
	"github.com/plcsnmp/plcsnmp/internal/config"
	"github.com/plcsnmp/plcsnmp/internal/metrics"
	"github.com/plcsnmp/plcsnmp/internal/middleware"
	"github.com/plcsnmp/plcsnmp/internal/supervisor"
)

// Version is reported by /health
var Version = "dev"

// StatusSource reports the supervisor's current state
type StatusSource interface {
	Snapshot() supervisor.Snapshot
}

// Server represents the status HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates and configures the status server
func NewServer(cfg config.StatusConfig, source StatusSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "status_server")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.StripSlashes)

	h := &statusHandler{source: source}

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
	})

	return &Server{
		router: r,
		httpServer: &http.Server{
			Addr:         cfg.Address(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout(),
			WriteTimeout: cfg.WriteTimeout(),
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

type statusHandler struct {
	source StatusSource
}

// Health handles GET /health
func (h *statusHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.SendJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "plcsnmp",
		"version": Version,
	})
}

// Ready handles GET /ready
func (h *statusHandler) Ready(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Snapshot()
	if !snap.Ready() {
		common.SendError(w, r, http.StatusServiceUnavailable, "NOT_READY", "controller is not connected", map[string]string{
			"state": snap.State,
		})
		return
	}
	common.SendJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": snap.State})
}

// Status handles GET /api/v1/status
func (h *statusHandler) Status(w http.ResponseWriter, r *http.Request) {
	common.SendJSON(w, http.StatusOK, h.source.Snapshot())
}
