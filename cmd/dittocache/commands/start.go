package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
	"github.com/marmos91/dittocache/pkg/api"
	"github.com/marmos91/dittocache/pkg/config"
	"github.com/marmos91/dittocache/pkg/runtime"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dittocache server",
	Long: `Start the dittocache server in the foreground.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittocache/config.yaml.

While running, edits to the logging level in the configuration file are
applied without a restart. On SIGINT or SIGTERM every cache is drained to its
backend before the process exits.

Examples:
  # Start with default config location
  dittocache start

  # Start with custom config file
  dittocache start --config /etc/dittocache/config.yaml

  # Start with environment variable overrides
  DITTOCACHE_LOGGING_LEVEL=DEBUG dittocache start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittocache",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittocache",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	configSource := getConfigSource(GetConfigFile())
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", configSource)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	// Metrics must exist before the runtime builds caches and backends.
	metricsResult := config.InitializeMetrics(cfg)

	rt, err := runtime.New(ctx, cfg, metricsResult, runtime.WithVersion(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}

	if metricsResult.Server != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		rt.SetMetricsServer(metricsResult.Server)
	} else {
		logger.Info("Metrics collection disabled")
	}

	if cfg.API.IsEnabled() {
		rt.SetAPIServer(api.NewServer(cfg.API, rt))
	} else {
		logger.Info("API server disabled")
	}

	if configSource != "defaults" {
		go watchLogLevel(ctx, configSource)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- rt.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, draining caches")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// watchLogLevel applies logging level changes from the config file until
// ctx is cancelled.
func watchLogLevel(ctx context.Context, path string) {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		if cfg.Logging.Level == logger.GetLevel().String() {
			return
		}
		logger.SetLevel(cfg.Logging.Level)
		logger.Info("Log level changed", "level", cfg.Logging.Level)
	})
	if err != nil {
		logger.Warn("Config watcher stopped", "path", path, logger.Err(err))
	}
}

// getConfigSource returns where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
