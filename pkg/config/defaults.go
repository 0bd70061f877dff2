package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittocache/internal/bytesize"
	"github.com/marmos91/dittocache/pkg/api"
	"github.com/marmos91/dittocache/pkg/tracker"
)

// DefaultCacheName names the cache created when none is configured.
const DefaultCacheName = "default"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	applyTrackerDefaults(&cfg.Tracker)
	applyCacheDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets the metrics port when metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAPIDefaults(cfg *api.APIConfig) {
	cfg.ApplyDefaults()
}

func applyTrackerDefaults(cfg *TrackerConfig) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = bytesize.ByteSize(tracker.DefaultMaxSize)
	}
	if cfg.Period == 0 {
		cfg.Period = tracker.DefaultPeriod
	}
}

// applyCacheDefaults adds a memory cache when none is configured and fills
// backend sections.
func applyCacheDefaults(cfg *Config) {
	if len(cfg.Caches) == 0 {
		cfg.Caches = []CacheConfig{{
			Name:    DefaultCacheName,
			Backend: BackendConfig{Type: BackendMemory},
		}}
	}
	for i := range cfg.Caches {
		b := &cfg.Caches[i].Backend
		b.Type = strings.ToLower(b.Type)
		if b.Type == BackendS3 && b.S3.MaxRetries == 0 {
			b.S3.MaxRetries = 3
		}
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
