package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-guard/internal/service/app"
)

var (
	// voiceFrameSeconds is the capture window per utterance.
	voiceFrameSeconds int

	// voiceCmd runs the hands-free trigger listener.
	voiceCmd = &cobra.Command{
		Use:   "voice",
		Short: "Listen for a spoken trigger phrase and fire the SOS.",
		Long: `Continuously captures short utterances from the microphone, transcribes
them, and triggers the full SOS cycle when a trigger phrase is heard.

Recognized phrases: "help me", "emergency", "sos" (case-insensitive, matched
anywhere in the utterance). Silence keeps the listener running; a microphone
or transcription transport failure terminates it.

Runs until Ctrl+C. Requires a recorder binary (arecord or sox) and the
speech recognition credentials in the settings file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return app.RunVoice(ctx, &app.VoiceOptions{
				ConfigPath:   configPath,
				FrameSeconds: voiceFrameSeconds,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	voiceCmd.Flags().IntVar(&voiceFrameSeconds, "frame-seconds", 0, "capture window per utterance in seconds")

	rootCmd.AddCommand(voiceCmd)
}
