// Package commands implements the dittocache CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/commands/config"
	"github.com/marmos91/dittocache/internal/logger"
	pkgconfig "github.com/marmos91/dittocache/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dittocache",
	Short: "dittocache - write-back block cache with a shared memory budget",
	Long: `dittocache buffers block writes in memory in front of durable backends
(filesystem, S3, BadgerDB) and flushes them in the background. A single
memory tracker bounds the bytes buffered across every cache.

Use "dittocache [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittocache/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *pkgconfig.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dittocache %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}
