package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

// HealthProbe is a dependency that can report whether it is reachable
type HealthProbe func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	probes map[string]HealthProbe
	order  []string
	logger *zap.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{probes: make(map[string]HealthProbe), logger: logger}
}

// Register adds a named probe. A nil probe is reported as "not configured".
func (h *HealthChecker) Register(name string, probe HealthProbe) *HealthChecker {
	if _, ok := h.probes[name]; !ok {
		h.order = append(h.order, name)
	}
	h.probes[name] = probe
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. ?mode=extended probes every dependency.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		response.Checks = make(map[string]string, len(h.order))
		for _, name := range h.order {
			probe := h.probes[name]
			if probe == nil {
				response.Checks[name] = "not configured"
				continue
			}
			if err := probe(ctx); err != nil {
				h.logger.Warn("health_check_failed", zap.String("dependency", name), zap.Error(err))
				response.Status = "unhealthy"
				response.Checks[name] = "unhealthy"
				continue
			}
			response.Checks[name] = "healthy"
		}
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed_to_encode_health_response", zap.Error(err))
	}
}
