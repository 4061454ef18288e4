// Package api is the HTTP ingress used by the status-update flow and by operators.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-engine/internal/common/config"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/engine"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

// Engine is the subset of *engine.Engine the HTTP layer needs.
type Engine interface {
	Submit(ctx context.Context, ev models.NotificationEvent) (models.SubmitResult, error)
	SubmitAll(ctx context.Context, events []models.NotificationEvent) ([]models.SubmitResult, error)
	Inspect(ctx context.Context, fp fingerprint.Fingerprint) (engine.Inspection, error)
}

// ReadinessCheck reports whether one backing store is reachable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	engine       Engine
	checks       map[string]ReadinessCheck
	maxBatchSize int
	cfg          config.ServerConfig
	logger       logger.Logger
	http         *http.Server
}

func NewServer(cfg config.ServerConfig, eng Engine, checks map[string]ReadinessCheck, log logger.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		engine:       eng,
		checks:       checks,
		maxBatchSize: cfg.MaxBatchSize,
		cfg:          cfg,
		logger:       log.Named("api"),
	}
	s.http = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/notifications", s.handleSubmit)
		r.Post("/notifications/batch", s.handleSubmitBatch)
		r.Get("/dedup/{fingerprint}", s.handleInspect)
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", map[string]interface{}{"address": s.cfg.Address})
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
