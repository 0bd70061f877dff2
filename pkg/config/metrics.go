package config

import (
	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/metrics"
	"github.com/marmos91/dittocache/pkg/metrics/prometheus"
	"github.com/marmos91/dittocache/pkg/store/block"
	"github.com/marmos91/dittocache/pkg/tracker"
)

// MetricsResult holds the collectors created from the metrics section. All
// fields are nil when metrics are disabled.
type MetricsResult struct {
	Server  *metrics.Server
	Tracker tracker.Metrics
	Cache   cache.Metrics
	Backend block.Metrics
}

// InitializeMetrics initializes the process registry and creates the
// collectors when metrics are enabled.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()
	return &MetricsResult{
		Server:  metrics.NewServer(cfg.Metrics.Port),
		Tracker: prometheus.NewTrackerMetrics(),
		Cache:   prometheus.NewCacheMetrics(),
		Backend: prometheus.NewBackendMetrics(),
	}
}
