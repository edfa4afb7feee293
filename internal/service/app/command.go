package app

import (
	"context"
	"fmt"
	"io"

	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/logger"
	"github.com/oshokin/sos-guard/internal/service/safety"
	"github.com/oshokin/sos-guard/internal/speech"
)

// ActivateOptions configures one SOS activation.
type ActivateOptions struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// Coordinates are optional precise coordinates for the alert.
	// When nil the location is resolved from the public IP address.
	Coordinates *domain.Coordinates

	// Note is free text appended to every outgoing message.
	Note string
}

// RunActivate triggers one SOS cycle and keeps it armed until cancellation.
//
// The fanout to contacts completes before this function starts waiting; the
// audio alert and the escalation fallback stay live until the context is
// cancelled, at which point the system is deactivated.
func RunActivate(ctx context.Context, opts *ActivateOptions) error {
	ctx = logger.WithName(ctx, "sos-activate")

	warnOnDuplicateInstance(ctx)

	rt, err := newRuntime(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer rt.close()

	summary, err := rt.controller.Activate(ctx, opts.Coordinates, opts.Note)
	if err != nil {
		return err
	}

	sent := 0

	for i := range summary.Results {
		if summary.Results[i].Sent() {
			sent++
		}
	}

	logger.InfoKV(ctx, "SOS alert dispatched",
		"activation_id", summary.ID,
		"sent", sent,
		"failed", len(summary.Results)-sent,
		"location", summary.Location.Address,
	)

	logger.Info(ctx, "SOS is active, press Ctrl+C to deactivate")
	<-ctx.Done()

	rt.controller.Deactivate(context.WithoutCancel(ctx))

	return nil
}

// VoiceOptions configures the voice trigger listener.
type VoiceOptions struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// FrameSeconds is the capture window per utterance, 0 for the default.
	FrameSeconds int
}

// RunVoice listens for a spoken trigger phrase and fires the SOS cycle when
// one is heard. Runs until the context is cancelled.
func RunVoice(ctx context.Context, opts *VoiceOptions) error {
	ctx = logger.WithName(ctx, "sos-voice")

	warnOnDuplicateInstance(ctx)

	rt, err := newRuntime(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer rt.close()

	frames, err := speech.NewMicSource(opts.FrameSeconds)
	if err != nil {
		return err
	}

	recognizer, err := speech.NewWhisperRecognizer(rt.cfg.OpenAI, frames)
	if err != nil {
		return err
	}

	listener := rt.controller.StartVoiceListener(ctx, recognizer)

	logger.Info(ctx, "Listening for voice trigger, press Ctrl+C to stop")
	<-ctx.Done()

	listener.Stop()
	rt.controller.Deactivate(context.WithoutCancel(ctx))

	return nil
}

// SendLocationOptions configures a non-emergency location share.
type SendLocationOptions struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// Coordinates are optional precise coordinates to share.
	// When nil the location is resolved from the public IP address.
	Coordinates *domain.Coordinates

	// Note is free text appended to the message.
	Note string
}

// RunSendLocation shares the current location with every text-capable
// contact without starting an activation cycle.
func RunSendLocation(ctx context.Context, opts *SendLocationOptions) error {
	ctx = logger.WithName(ctx, "sos-send-location")

	rt, err := newRuntime(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer rt.close()

	results, err := rt.controller.SendLocation(ctx, opts.Coordinates, opts.Note)
	if err != nil {
		return err
	}

	for i := range results {
		result := &results[i]
		if result.Sent() {
			logger.InfoKV(ctx, "Location shared", "contact", result.Contact, "channel", string(result.Channel))
		} else {
			logger.WarnKV(ctx, "Location share failed",
				"contact", result.Contact, "channel", string(result.Channel), "error", result.Error)
		}
	}

	return nil
}

// HistoryOptions configures event log inspection.
type HistoryOptions struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// Limit is the maximum number of entries to show, 0 for all.
	Limit int

	// Out receives the printed entries.
	Out io.Writer
}

// RunHistory prints the most recent event log entries.
func RunHistory(ctx context.Context, opts *HistoryOptions) error {
	rt, err := newRuntime(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer rt.close()

	entries, err := rt.recorder.Tail(ctx, opts.Limit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(opts.Out, "No events recorded yet.") //nolint:errcheck // Terminal output.

		return nil
	}

	for _, entry := range entries {
		fmt.Fprintln(opts.Out, entry) //nolint:errcheck // Terminal output.
	}

	return nil
}

// CheckSafetyOptions configures one safety assessment query.
type CheckSafetyOptions struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// Location is the destination to assess.
	Location string

	// TravelTime is when the travel happens, free text such as "10 pm".
	TravelTime string

	// Out receives the printed assessment.
	Out io.Writer
}

// RunCheckSafety asks the assistant how safe the destination is at the given
// time and prints the cleaned assessment.
func RunCheckSafety(ctx context.Context, opts *CheckSafetyOptions) error {
	ctx = logger.WithName(ctx, "sos-check-safety")

	rt, err := newRuntime(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer rt.close()

	service, err := safety.NewService(rt.cfg.OpenAI, rt.recorder)
	if err != nil {
		return err
	}

	assessment, err := service.CheckSafety(ctx, opts.Location, opts.TravelTime)
	if err != nil {
		return err
	}

	fmt.Fprintln(opts.Out, assessment) //nolint:errcheck // Terminal output.

	return nil
}
