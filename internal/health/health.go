package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthChecker serves liveness probes and the Prometheus scrape endpoint.
type HealthChecker struct {
	logger *logrus.Logger
}

// HealthStatus is the health check response body.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func NewHealthChecker(logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{logger: logger}
}

// Handler returns the health check endpoint.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

// StartServer starts the HTTP server for health checks and metrics.
func (h *HealthChecker) StartServer(port string) *http.Server {
	mux := http.NewServeMux()
	handler := h.Handler()
	mux.HandleFunc("/healthz", handler)
	mux.HandleFunc("/health", handler)
	mux.HandleFunc("/ready", handler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		h.logger.WithField("port", port).Info("Starting health check server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.WithError(err).Error("Health check server failed")
		}
	}()

	return server
}
