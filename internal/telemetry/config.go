package telemetry

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	Enabled bool

	// ServiceName is reported to the trace backend and used as tracer name.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint, e.g. "localhost:4317".
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of traces kept, 0.0 to 1.0.
	SampleRate float64
}

// ProfilingConfig holds Pyroscope continuous profiling configuration.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL, e.g. "http://localhost:4040".
	Endpoint string

	// ProfileTypes lists the profiles to collect: cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex_count,
	// mutex_duration, block_count, block_duration.
	ProfileTypes []string
}

const defaultServiceName = "dittocache"

// DefaultConfig returns tracing disabled with a local collector endpoint.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    defaultServiceName,
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// DefaultProfilingConfig returns profiling disabled with CPU and heap profiles.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:        false,
		ServiceName:    defaultServiceName,
		ServiceVersion: "dev",
		Endpoint:       "http://localhost:4040",
		ProfileTypes:   []string{"cpu", "inuse_space", "goroutines", "mutex_duration"},
	}
}
