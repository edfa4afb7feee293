package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-guard/internal/service/app"
)

var (
	// historyLimit caps the number of printed entries.
	historyLimit int

	// historyCmd prints the event log.
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent SOS events.",
		Long: `Prints the most recent entries from the append-only event log:
activations, delivery outcomes, escalation calls and deactivations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return app.RunHistory(ctx, &app.HistoryOptions{
				ConfigPath: configPath,
				Limit:      historyLimit,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries to show, 0 for all")

	rootCmd.AddCommand(historyCmd)
}
