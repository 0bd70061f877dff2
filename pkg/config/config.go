// Package config loads, validates and persists the dittocache configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittocache/internal/bytesize"
	"github.com/marmos91/dittocache/pkg/api"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "DITTOCACHE"

// Config represents the dittocache configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOCACHE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown,
	// including draining every cache to its backend
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the REST API server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Tracker bounds the memory buffered across all caches
	Tracker TrackerConfig `mapstructure:"tracker" yaml:"tracker"`

	// Caches lists the write-back caches and their durable backends.
	// Default: one memory-backed cache named "default"
	Caches []CacheConfig `mapstructure:"caches" validate:"required,min=1,dive" yaml:"caches"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// TrackerConfig configures the memory tracker shared by all caches.
type TrackerConfig struct {
	// MaxSize is the total number of bytes that may be buffered.
	// Supports human-readable formats: "64Mi", "1Gi"
	// Default: 64Mi
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size"`

	// Period is the delay before a routine flush after the first admission.
	// Default: 5s
	Period time.Duration `mapstructure:"period" validate:"gte=0" yaml:"period"`

	// StrictAccounting panics instead of clamping when the ledger would go
	// negative. Meant for tests and debugging.
	StrictAccounting bool `mapstructure:"strict_accounting" yaml:"strict_accounting,omitempty"`
}

// CacheConfig declares one write-back cache.
type CacheConfig struct {
	// Name identifies the cache in the API and in metrics
	Name string `mapstructure:"name" validate:"required,excludesall=/ " yaml:"name"`

	// Backend is the durable store blocks are flushed to
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
}

// Backend types.
const (
	BackendMemory     = "memory"
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
	BackendBadger     = "badger"
)

// BackendConfig selects and configures a block backend. Only the section
// matching Type is used.
type BackendConfig struct {
	// Type is one of: memory, filesystem, s3, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory filesystem s3 badger" yaml:"type"`

	Memory     MemoryBackendConfig     `mapstructure:"memory" yaml:"memory,omitempty"`
	Filesystem FilesystemBackendConfig `mapstructure:"filesystem" yaml:"filesystem,omitempty"`
	S3         S3BackendConfig         `mapstructure:"s3" yaml:"s3,omitempty"`
	Badger     BadgerBackendConfig     `mapstructure:"badger" yaml:"badger,omitempty"`
}

// MemoryBackendConfig configures the volatile in-memory backend.
type MemoryBackendConfig struct {
	// Latency is added to every write, to simulate a slow backend
	Latency time.Duration `mapstructure:"latency" yaml:"latency,omitempty"`
}

// FilesystemBackendConfig configures the filesystem backend.
type FilesystemBackendConfig struct {
	// Path is the directory blocks are stored under
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// S3BackendConfig configures the S3 backend.
type S3BackendConfig struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Region         string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	KeyPrefix      string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	MaxRetries     int    `mapstructure:"max_retries" validate:"gte=0" yaml:"max_retries,omitempty"`

	// AccessKeyID and SecretAccessKey override the SDK credential chain
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// BadgerBackendConfig configures the embedded BadgerDB backend.
type BadgerBackendConfig struct {
	Path       string `mapstructure:"path" yaml:"path,omitempty"`
	InMemory   bool   `mapstructure:"in_memory" yaml:"in_memory,omitempty"`
	SyncWrites bool   `mapstructure:"sync_writes" yaml:"sync_writes,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing config file is not an error: defaults are used, still
// overridable through the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittocache init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittocache <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittocache init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry S3 credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOCACHE_TRACKER_MAX_SIZE=256Mi
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys are the scalar settings that can be overridden from the
// environment without appearing in the config file.
var envKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"telemetry.enabled", "telemetry.endpoint", "telemetry.insecure", "telemetry.sample_rate",
	"telemetry.profiling.enabled", "telemetry.profiling.endpoint",
	"shutdown_timeout",
	"metrics.enabled", "metrics.port",
	"api.enabled", "api.port", "api.read_timeout", "api.write_timeout", "api.idle_timeout", "api.max_block_size",
	"tracker.max_size", "tracker.period", "tracker.strict_accounting",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings like "1Gi" or "500Mi" and plain
// numbers to bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dittocache, ~/.config/dittocache,
// or "." if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittocache")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittocache")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
