package app

import (
	"context"

	"github.com/oshokin/sos-guard/internal/config"
	"github.com/oshokin/sos-guard/internal/dispatch"
	"github.com/oshokin/sos-guard/internal/location"
	"github.com/oshokin/sos-guard/internal/logger"
	"github.com/oshokin/sos-guard/internal/ratelimit"
	"github.com/oshokin/sos-guard/internal/repository/eventlog"
	"github.com/oshokin/sos-guard/internal/service/common"
	"github.com/oshokin/sos-guard/internal/service/guard"
)

// runtime bundles the long-lived pieces assembled from one settings file.
type runtime struct {
	// cfg is the validated configuration.
	cfg *config.Config
	// recorder is the durable event log, shared by every command.
	recorder eventlog.Recorder
	// controller owns the activation state machine.
	controller *guard.Controller
}

// newRuntime loads settings and assembles the controller with its
// collaborators. Missing provider credentials are legal here: the affected
// dispatchers degrade to always-fail and the rest of the fanout proceeds.
func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// The audit trail survives without an actor; detection failures are
	// not worth blocking an emergency for.
	actor, err := common.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Failed to detect actor for audit trail", "error", err)
	}

	recorder := eventlog.NewFileRecorder(cfg.EventLogFile)

	dispatchers := []dispatch.Dispatcher{
		dispatch.NewSMSDispatcher(cfg.Twilio),
		dispatch.NewCallDispatcher(cfg.Twilio),
		dispatch.NewEmailDispatcher(cfg.SMTP),
	}

	controller := guard.NewController(
		guard.BuildContacts(cfg.Contacts),
		ratelimit.New(cfg.MinInterval),
		location.NewResolver(cfg.LocationTimeout),
		recorder,
		dispatchers,
		dispatch.NewAudioAlert(cfg.AlertSoundFile),
		guard.WithShareLimiter(ratelimit.New(cfg.MinInterval)),
		guard.WithEmergencyNumber(cfg.EmergencyNumber),
		guard.WithDispatchTimeout(cfg.DispatchTimeout),
		guard.WithEscalationDelay(cfg.EscalationDelay),
		guard.WithActor(actor),
	)

	return &runtime{
		cfg:        cfg,
		recorder:   recorder,
		controller: controller,
	}, nil
}

// close releases the event log.
func (r *runtime) close() {
	if err := r.recorder.Close(); err != nil {
		logger.ErrorKV(context.Background(), "Failed to close event log", "error", err)
	}
}

// warnOnDuplicateInstance logs when a second copy of the binary is running.
// Two instances would race each other on the event log and the providers,
// but the check is advisory: an SOS is never refused because of it.
func warnOnDuplicateInstance(ctx context.Context) {
	duplicate, err := common.AnotherInstanceRunning()
	if err != nil {
		logger.DebugKV(ctx, "Instance check failed", "error", err)

		return
	}

	if duplicate {
		logger.Warn(ctx, "Another sos-guard instance appears to be running")
	}
}
