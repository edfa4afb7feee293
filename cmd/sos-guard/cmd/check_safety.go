package cmd

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-guard/internal/service/app"
)

var (
	// checkSafetyTime is when the travel happens.
	checkSafetyTime string

	// checkSafetyCmd asks the assistant to assess a destination.
	checkSafetyCmd = &cobra.Command{
		Use:   "check-safety <location>",
		Short: "Assess how safe a destination is before traveling.",
		Long: `Asks the safety assistant how safe the given destination is at the given
time of day. The assessment covers a risk level, recent incident insights,
precaution tips and alternative routes for risky areas.

Repeated queries for the same destination and time are answered from a local
cache without contacting the assistant again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return app.RunCheckSafety(ctx, &app.CheckSafetyOptions{
				ConfigPath: configPath,
				Location:   strings.Join(args, " "),
				TravelTime: checkSafetyTime,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkSafetyCmd.Flags().StringVarP(&checkSafetyTime, "time", "t", "now", "time of travel, free text such as \"10 pm\"")

	rootCmd.AddCommand(checkSafetyCmd)
}
