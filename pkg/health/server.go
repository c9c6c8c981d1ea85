// Package health serves liveness, readiness, pool status, and Prometheus
// metrics on the configured port.
package health

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forecasthq/forecast-submitter/pkg/audit"
	"github.com/forecasthq/forecast-submitter/pkg/endpoints"
	"github.com/forecasthq/forecast-submitter/pkg/logger"
)

// Server represents the health and metrics HTTP server.
type Server struct {
	port          string
	runID         string
	pool          *endpoints.Pool
	audit         *audit.Store
	logger        logger.Logger
	metricsAPIKey string
}

// NewServer creates a new health server.
func NewServer(port, runID string, pool *endpoints.Pool, auditStore *audit.Store, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		runID:         runID,
		pool:          pool,
		audit:         auditStore,
		logger:        log,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the route table. Exposed separately so tests can exercise
// the routes without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Ready when at least one endpoint is usable
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.pool.HealthyCount() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("No healthy endpoints"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"run_id":    s.runID,
			"endpoints": s.pool.Snapshot(),
		}

		if s.audit != nil {
			if recent, err := s.audit.Recent(r.Context(), 5); err == nil {
				status["recent_attempts"] = recent
			} else {
				s.logger.ErrorWith(logger.Health, "Failed to read recent audit records: %v", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.ErrorWith(logger.Health, "Error encoding status JSON: %v", err)
		}
	})

	// Manual pool reset for operators, mirroring the automatic exhaustion reset
	mux.HandleFunc("/pool/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.pool.ResetAll()
		s.logger.NoticeWith(logger.Health, "Endpoint pool reset via admin endpoint")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Pool reset"))
	})

	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Start starts the health server and blocks until it exits.
func (s *Server) Start() {
	s.logger.InfoWith(logger.Health, "Starting health and metrics server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, s.Handler()); err != nil {
		s.logger.ErrorWith(logger.Health, "Health server error: %v", err)
	}
}
