// Package commands implements the CLI commands for the tidepool service.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pventura/tidepool/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tidepool",
	Short: "Tidepool - PostgreSQL/Redis backed API service",
	Long: `Tidepool is a small API service backed by a PostgreSQL connection pool
and a Redis cache. It brings both resources up in a safe order, applies
pending schema migrations, and serves traffic through an immutable shared
state handed to every request.

Use "tidepool [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/tidepool/config.yaml if present)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global flag, falling
// back to the default location when that file exists.
func GetConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := config.GetDefaultConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
