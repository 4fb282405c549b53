// Package health exposes liveness and Prometheus metrics over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TradeSentinel/internal/supervisor"
)

// StatusSource reports the supervisor's state.
type StatusSource interface {
	Healthy() bool
	Status() supervisor.Status
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	source StatusSource
	server *http.Server
}

// NewServer creates a new health server.
func NewServer(source StatusSource, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		source: source,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server. It returns nil after Stop.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.source.Status()
	status := "healthy"
	code := http.StatusOK
	if !s.source.Healthy() {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	response := map[string]any{
		"status":               status,
		"state":                st.State,
		"consecutive_failures": st.ConsecutiveFailures,
	}
	if !st.LastRunAt.IsZero() {
		response["last_run_at"] = st.LastRunAt
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.source.Status())
}
