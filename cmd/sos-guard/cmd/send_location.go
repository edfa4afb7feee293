package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/service/app"
)

var (
	// sendLocationNote is free text appended to the message.
	sendLocationNote string

	// sendLocationCmd shares the current location without raising an alarm.
	sendLocationCmd = &cobra.Command{
		Use:   "send-location [latitude longitude]",
		Short: "Share the current location with all contacts.",
		Long: `Sends the current location to every text-capable contact over SMS and
email without raising an alarm: no alert sound and no fallback call.

Repeat shares inside the minimum interval are rejected to keep a stuck
trigger from flooding the contacts; the interval is tracked separately from
SOS activations.

Coordinates can be passed as arguments for a precise position; without them
the location is approximated from the public IP address.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			coordinates, err := parseCoordinateArgs(args)
			if err != nil {
				return err
			}

			return app.RunSendLocation(ctx, &app.SendLocationOptions{
				ConfigPath:  configPath,
				Coordinates: coordinates,
				Note:        sendLocationNote,
			})
		},
	}
)

// parseCoordinateArgs converts optional positional arguments into coordinates.
func parseCoordinateArgs(args []string) (*domain.Coordinates, error) {
	if len(args) == 0 {
		return nil, nil //nolint:nilnil // Absent coordinates are a valid outcome.
	}

	if len(args) != 2 {
		return nil, fmt.Errorf("expected both latitude and longitude, got %d argument(s)", len(args))
	}

	latitude, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude %q: %w", args[0], err)
	}

	longitude, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude %q: %w", args[1], err)
	}

	return &domain.Coordinates{Latitude: latitude, Longitude: longitude}, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	sendLocationCmd.Flags().StringVarP(&sendLocationNote, "note", "n", "", "extra text appended to the message")

	rootCmd.AddCommand(sendLocationCmd)
}
