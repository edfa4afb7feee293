package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/service/app"
)

var (
	// activateNote is free text appended to every outgoing message.
	activateNote string
	// activateYes skips the interactive confirmation.
	activateYes bool
	// activateLat and activateLon optionally pin the alert location.
	activateLat float64
	activateLon float64

	// activateCmd triggers one SOS cycle.
	activateCmd = &cobra.Command{
		Use:   "activate",
		Short: "Trigger an SOS alert to all emergency contacts.",
		Long: `Triggers a full SOS cycle: alerts every configured contact at once over
SMS, voice call and email, includes the current location, starts the local
alert sound and arms the automatic fallback call.

The alert stays active until Ctrl+C. Repeat activations inside the minimum
interval are rejected to keep a stuck trigger from flooding the contacts.

By default the command asks for confirmation; pass --yes to skip it, for
example when binding the command to a hardware button.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if !activateYes && !confirm(cmd) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.") //nolint:errcheck // Terminal output.

				return nil
			}

			return app.RunActivate(ctx, &app.ActivateOptions{
				ConfigPath:  configPath,
				Coordinates: coordinatesFromFlags(cmd, activateLat, activateLon),
				Note:        activateNote,
			})
		},
	}
)

// confirm asks the operator to acknowledge before alerting real contacts.
func confirm(cmd *cobra.Command) bool {
	fmt.Fprint(cmd.OutOrStdout(), "This will alert all emergency contacts. Continue? [y/N]: ") //nolint:errcheck // Terminal output.

	reader := bufio.NewReader(cmd.InOrStdin())

	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))

	return answer == "y" || answer == "yes"
}

// coordinatesFromFlags returns precise coordinates when both flags were set.
func coordinatesFromFlags(cmd *cobra.Command, lat, lon float64) *domain.Coordinates {
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return nil
	}

	return &domain.Coordinates{Latitude: lat, Longitude: lon}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	activateCmd.Flags().StringVarP(&activateNote, "note", "n", "", "extra text appended to every message")
	activateCmd.Flags().BoolVarP(&activateYes, "yes", "y", false, "skip the confirmation prompt")
	activateCmd.Flags().Float64Var(&activateLat, "lat", 0, "latitude override for the alert location")
	activateCmd.Flags().Float64Var(&activateLon, "lon", 0, "longitude override for the alert location")

	rootCmd.AddCommand(activateCmd)
}
