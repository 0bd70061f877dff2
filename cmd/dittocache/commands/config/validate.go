package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/internal/cli/output"
	"github.com/marmos91/dittocache/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dittocache configuration file.

Checks for syntax errors, missing required fields, invalid values and
inconsistent backend settings.

Examples:
  # Validate default config
  dittocache config validate

  # Validate specific config file
  dittocache config validate --config /etc/dittocache/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := configWarnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	kv := output.KeyValues{}.
		Add("  Memory budget", output.Bytes(cfg.Tracker.MaxSize.Int64())).
		Add("  Flush period", cfg.Tracker.Period.String()).
		Add("  API port", fmt.Sprint(cfg.API.Port)).
		Add("  Log level", cfg.Logging.Level)
	for _, c := range cfg.Caches {
		kv = kv.Add("  Cache "+c.Name, c.Backend.Type)
	}
	return output.PrintKeyValues(out, kv)
}

// configWarnings reports valid but probably unintended settings.
func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Tracker.Period == 0 {
		warnings = append(warnings, "tracker.period is 0: every admission triggers an immediate flush")
	}
	if cfg.Tracker.StrictAccounting {
		warnings = append(warnings, "tracker.strict_accounting is set: accounting defects will panic")
	}
	for _, c := range cfg.Caches {
		switch {
		case c.Backend.Type == config.BackendMemory:
			warnings = append(warnings, fmt.Sprintf("cache %q uses the memory backend: flushed blocks are lost on exit", c.Name))
		case c.Backend.Type == config.BackendBadger && c.Backend.Badger.InMemory:
			warnings = append(warnings, fmt.Sprintf("cache %q uses an in-memory badger backend: flushed blocks are lost on exit", c.Name))
		}
	}
	if cfg.API.MaxBlockSize.Int64() > cfg.Tracker.MaxSize.Int64() {
		warnings = append(warnings, "api.max_block_size exceeds tracker.max_size: the largest blocks are always written through")
	}
	return warnings
}
