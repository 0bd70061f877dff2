package handlers

import "net/http"

// StatusHandler serves the aggregate server status.
type StatusHandler struct {
	runtime Runtime
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(rt Runtime) *StatusHandler {
	return &StatusHandler{runtime: rt}
}

// Get handles GET /api/v1/status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		ServiceUnavailable(w, "runtime not initialized")
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.runtime.Status()))
}
