package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	pathMetrics = "/metrics"
	pathHealth  = "/health"

	serviceName = "voice-clone-worker"

	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	healthCheckTimeout = 5 * time.Second
	readHeaderTimeout  = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// HealthCheckFunc reports whether a dependency is usable.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// HealthHandler answers 200 while check succeeds and 503 otherwise. A nil check always
// reports healthy.
func HealthHandler(check HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    statusHealthy,
			Service:   serviceName,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			err := check(ctx)
			if err != nil {
				status.Status = statusUnhealthy
				status.Error = err.Error()
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

// Server serves /metrics and /health.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, gatherer prometheus.Gatherer, check HealthCheckFunc, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewMux(gatherer, check),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
}

// NewMux routes the metrics and health endpoints.
func NewMux(gatherer prometheus.Gatherer, check HealthCheckFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(pathMetrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(pathHealth, HealthHandler(check))

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("Metrics server listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("metrics server on %s failed: %w", s.httpServer.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}

	return nil
}
