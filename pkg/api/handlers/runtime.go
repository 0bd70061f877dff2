package handlers

import (
	"time"

	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/tracker"
)

// Runtime is the view of the running server the handlers need.
type Runtime interface {
	// Status returns a snapshot of the tracker, caches and scheduler.
	Status() Status

	// Caches returns every configured cache, in configuration order.
	Caches() []*cache.Cache

	// Cache looks up a cache by name.
	Cache(name string) (*cache.Cache, bool)
}

// Status is the body of GET /api/v1/status.
type Status struct {
	Version   string          `json:"version,omitempty"`
	Uptime    string          `json:"uptime,omitempty"`
	Tracker   tracker.Stats   `json:"tracker"`
	Scheduler SchedulerStatus `json:"scheduler"`
	Caches    []CacheStatus   `json:"caches"`
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
