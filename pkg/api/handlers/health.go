package handlers

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the backend checks of a single request.
const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Are all backends reachable?
//   - Backend health: Detailed health status of every cache backend
type HealthHandler struct {
	runtime Runtime
}

// NewHealthHandler creates a new health handler.
//
// The runtime may be nil, in which case readiness and backend health checks
// return unhealthy status.
func NewHealthHandler(rt Runtime) *HealthHandler {
	return &HealthHandler{runtime: rt}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dittocache",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 503 Service Unavailable when no cache is configured or any
// backend fails its health check.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("runtime not initialized"))
		return
	}

	caches := h.runtime.Caches()
	if len(caches) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no caches configured"))
		return
	}

	backends, _ := h.checkBackends(r.Context())
	for _, b := range backends {
		if b.Status != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable,
				unhealthyResponse("backend of cache "+b.Cache+" is unhealthy: "+b.Error))
			return
		}
	}

	st := h.runtime.Status()
	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"caches":        len(caches),
		"buffered":      st.Tracker.Size,
		"max_size":      st.Tracker.MaxSize,
		"flush_queued":  st.Tracker.Queued,
		"flush_running": st.Tracker.Running,
	}))
}

// BackendHealth represents the health status of a single cache backend.
type BackendHealth struct {
	Cache   string `json:"cache"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Backends handles GET /health/backends - detailed backend health.
//
// Returns 200 OK if all backends are healthy, 503 Service Unavailable if
// any backend is unhealthy.
func (h *HealthHandler) Backends(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("runtime not initialized"))
		return
	}

	backends, healthy := h.checkBackends(r.Context())
	if healthy {
		writeJSON(w, http.StatusOK, healthyResponse(backends))
	} else {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(backends))
	}
}

func (h *HealthHandler) checkBackends(ctx context.Context) ([]BackendHealth, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	caches := h.runtime.Caches()
	out := make([]BackendHealth, 0, len(caches))
	healthy := true

	for _, c := range caches {
		start := time.Now()
		err := c.Backend().HealthCheck(ctx)

		bh := BackendHealth{
			Cache:   c.Name(),
			Latency: time.Since(start).String(),
		}
		if err != nil {
			bh.Status = "unhealthy"
			bh.Error = err.Error()
			healthy = false
		} else {
			bh.Status = "healthy"
		}
		out = append(out, bh)
	}
	return out, healthy
}
