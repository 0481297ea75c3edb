package handler

import (
	"net/http"
)

// Pinger reports connectivity of an optional downstream dependency.
type Pinger interface {
	IsConnected() bool
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	events Pinger
}

// NewHealthHandler creates a health handler. events may be nil when
// event publishing is disabled.
func NewHealthHandler(events Pinger) *HealthHandler {
	return &HealthHandler{events: events}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.events != nil && !h.events.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"events": "disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
