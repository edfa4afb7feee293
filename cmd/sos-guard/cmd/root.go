package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-guard/internal/config"
	"github.com/oshokin/sos-guard/internal/logger"
	"github.com/oshokin/sos-guard/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel stores the requested logging verbosity.
	logLevel string

	// rootCmd represents the base command for the personal safety tool.
	rootCmd = &cobra.Command{
		Use:   "sos-guard",
		Short: "Personal safety tool: SOS alerts, location sharing and safety checks.",
		Long: `Personal safety tool for emergencies.

Activating an SOS alerts every configured emergency contact at once over SMS,
voice call and email, includes the current location, plays a local alert sound
and places an automatic fallback call when nobody reacts. A voice listener can
trigger the same cycle hands-free, and the assistant can assess how safe a
destination is before traveling there.

All commands read settings from a YAML file holding the contact list and the
provider credentials.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
	}
)

// Execute runs the sos-guard CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup persistent flags shared by every subcommand.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "info", "logging verbosity (debug, info, warn, error)")
}
