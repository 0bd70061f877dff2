package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample dittocache configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittocache/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dittocache init

  # Initialize with custom path
  dittocache init --config /etc/dittocache/config.yaml

  # Force overwrite existing config
  dittocache init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the caches section to point at your backends")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: dittocache start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: dittocache start --config %s\n", configPath)
	return nil
}
