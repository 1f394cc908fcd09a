package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     Pinger
	degraded func() bool
	streams  *StreamManager
}

// NewHealthHandler creates a health handler. degraded reports whether
// session persistence fell back to memory; it may be nil.
func NewHealthHandler(repo Pinger, degraded func() bool, streams *StreamManager) *HealthHandler {
	return &HealthHandler{repo: repo, degraded: degraded, streams: streams}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if h.repo == nil {
		checks["database"] = "disabled"
	} else if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.degraded != nil && h.degraded() {
		checks["session_persistence"] = "memory"
	}
	if h.streams != nil {
		status["streams"] = h.streams.Count()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
