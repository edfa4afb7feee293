package guard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/oshokin/sos-guard/internal/logger"
	"github.com/oshokin/sos-guard/internal/speech"
)

// triggerKeywords are matched case-insensitively as substrings of every
// recognized utterance.
var triggerKeywords = []string{"help me", "emergency", "sos"}

// VoiceListener is a handle to one background voice trigger session.
// Each listener is single-shot: after a recognized trigger it activates
// the SOS cycle once and terminates itself.
type VoiceListener struct {
	// cancel tears the listening loop down.
	cancel context.CancelFunc
	// done is closed when both listener goroutines have exited.
	done chan struct{}
	// stopOnce guards cancellation.
	stopOnce sync.Once
}

// Stop terminates the listener and waits for its goroutines to exit.
// Safe to call more than once and on a nil listener.
func (l *VoiceListener) Stop() {
	if l == nil {
		return
	}

	l.stopOnce.Do(l.cancel)
	<-l.done
}

// StartVoiceListener launches a background listener that continuously
// captures short utterances and activates the SOS cycle when a trigger
// keyword is heard.
//
// The listener never calls Activate from its own loop: it emits a single
// trigger event on a channel and a consumer goroutine owned by the
// controller performs the activation. Recoverable recognition failures
// (silence, unintelligible audio) keep the loop running; a hard transport
// error terminates the listener and is logged.
func (c *Controller) StartVoiceListener(ctx context.Context, recognizer speech.Recognizer) *VoiceListener {
	ctx = logger.WithName(ctx, "voice-listener")

	listenCtx, cancel := context.WithCancel(ctx)

	listener := &VoiceListener{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	trigger := make(chan string, 1)

	var workers sync.WaitGroup

	workers.Add(2)

	// Listening loop: capture, recognize, match.
	go func() {
		defer workers.Done()
		defer close(trigger)

		logger.Info(ctx, "Voice activation listener started")

		for {
			if listenCtx.Err() != nil {
				return
			}

			text, err := recognizer.Listen(listenCtx)

			switch {
			case errors.Is(err, speech.ErrNoSpeech):
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return
			case err != nil:
				logger.ErrorKV(ctx, "Speech recognition error, listener terminated", "error", err)
				c.logEvent(ctx, "Voice listener terminated: "+err.Error())

				return
			}

			if keyword, ok := matchTrigger(text); ok {
				logger.InfoKV(ctx, "SOS trigger keyword recognized", "keyword", keyword)
				trigger <- text

				return
			}
		}
	}()

	// Consumer: activates from the controller's own execution context so the
	// activation never re-enters the listener goroutine.
	go func() {
		defer workers.Done()

		if _, ok := <-trigger; !ok {
			return
		}

		summary, err := c.Activate(ctx, nil, "")

		switch {
		case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrRateLimited):
			logger.WarnKV(ctx, "Voice-triggered activation rejected", "reason", err)
		case err != nil:
			logger.ErrorKV(ctx, "Voice-triggered activation failed", "error", err)
		default:
			logger.InfoKV(ctx, "SOS activated by voice command",
				"activation_id", summary.ID, "deliveries", len(summary.Results))
		}
	}()

	go func() {
		workers.Wait()
		close(listener.done)

		c.mu.Lock()
		if c.listener == listener {
			c.listener = nil
		}
		c.mu.Unlock()
	}()

	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()

	return listener
}

// matchTrigger reports the first trigger keyword contained in the utterance.
func matchTrigger(text string) (string, bool) {
	lowered := strings.ToLower(text)

	for _, keyword := range triggerKeywords {
		if strings.Contains(lowered, keyword) {
			return keyword, true
		}
	}

	return "", false
}
