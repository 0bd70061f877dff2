package apiclient

import (
	"context"
	"net/http"
	"time"
)

// TrackerStats is the tracker snapshot reported by the server.
type TrackerStats struct {
	Size              int64         `json:"size"`
	MaxSize           int64         `json:"max_size"`
	Period            time.Duration `json:"period"`
	Queued            bool          `json:"queued"`
	Running           bool          `json:"running"`
	Stores            int           `json:"stores"`
	Admitted          uint64        `json:"admitted"`
	AdmittedBytes     uint64        `json:"admitted_bytes"`
	Refused           uint64        `json:"refused"`
	RoutineSweeps     uint64        `json:"routine_sweeps"`
	UrgentSweeps      uint64        `json:"urgent_sweeps"`
	AbortedSweeps     uint64        `json:"aborted_sweeps"`
	Rearms            uint64        `json:"rearms"`
	SkippedStores     uint64        `json:"skipped_stores"`
	AccountingDefects uint64        `json:"accounting_defects"`
	Evictions         uint64        `json:"evictions"`
	FlushedBytes      uint64        `json:"flushed_bytes"`
}

// SchedulerStatus reports the flush jobs known to the scheduler.
type SchedulerStatus struct {
	Pending int        `json:"pending"`
	Running int        `json:"running"`
	NextDue *time.Time `json:"next_due,omitempty"`
}

// CacheStatus describes one cache.
type CacheStatus struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	Size    int64  `json:"size"`
	Blocks  int    `json:"blocks"`
}

// Status is the response of GET /api/v1/status.
type Status struct {
	Version   string          `json:"version,omitempty"`
	Uptime    string          `json:"uptime,omitempty"`
	Tracker   TrackerStats    `json:"tracker"`
	Scheduler SchedulerStatus `json:"scheduler"`
	Caches    []CacheStatus   `json:"caches"`
}

// BackendHealth is the health of one cache backend.
type BackendHealth struct {
	Cache   string `json:"cache"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Status returns the server status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	return getResource[Status](ctx, c, "/api/v1/status")
}

// Health checks liveness. A nil error means the server answered.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// Ready checks readiness: every backend must pass its health check.
func (c *Client) Ready(ctx context.Context) error {
	return c.get(ctx, "/health/ready", nil)
}

// Backends returns the health of every cache backend. On 503 the per
// backend report is still returned together with the error.
func (c *Client) Backends(ctx context.Context) ([]BackendHealth, error) {
	body, _, err := c.send(ctx, request{method: http.MethodGet, path: "/health/backends"})
	var out []BackendHealth
	if decodeErr := decodeEnvelope(body, &out); decodeErr != nil && err == nil {
		return nil, decodeErr
	}
	return out, err
}
