package api

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// --- Liveness ---
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "alive",
		Message: "Service is running",
	})
}

// --- Readiness ---
func (h *handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthDetails := make(map[string]string)
	var failing []string

	if h.DB == nil {
		healthDetails["database"] = "unconfigured"
		failing = append(failing, "database not configured")
	} else if err := h.DB.Ping(ctx); err != nil {
		healthDetails["database"] = "unhealthy"
		failing = append(failing, fmt.Sprintf("database unhealthy: %v", err))
	} else {
		healthDetails["database"] = "healthy"
	}

	statusCode := http.StatusOK
	statusMsg := "ready"
	if len(failing) > 0 {
		statusCode = http.StatusServiceUnavailable
		statusMsg = fmt.Sprintf("%d component(s) failing", len(failing))
		h.Logger.Warnw("readiness check failed", "errors", failing)
	}

	h.writeJSON(w, statusCode, HealthResponse{
		Status:  statusMsg,
		Details: healthDetails,
	})
}
