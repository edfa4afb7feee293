package dispatch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"github.com/oshokin/sos-guard/internal/logger"
)

// AudioAlert is the degenerate local channel: it has no contact and no
// delivery result, just a looping alert sound that plays until stopped.
type AudioAlert struct {
	// soundPath is the mp3 file to loop.
	soundPath string
	// mu serialises Start/Stop against each other.
	mu sync.Mutex
	// active is the currently playing handle, nil when silent.
	active *AudioHandle
}

// AudioHandle identifies one playback session.
type AudioHandle struct {
	// stop tears the session down exactly once.
	stop func()
	// once guards stop.
	once sync.Once
}

// Stop ends the playback session. Safe to call more than once.
func (h *AudioHandle) Stop() {
	if h == nil {
		return
	}

	h.once.Do(func() {
		if h.stop != nil {
			h.stop()
		}
	})
}

// speakerBufferInterval sizes the speaker buffer.
const speakerBufferInterval = time.Second / 10

// NewAudioAlert creates the audio alert for the provided sound file.
func NewAudioAlert(soundPath string) *AudioAlert {
	return &AudioAlert{soundPath: soundPath}
}

// Start begins looping playback and returns a handle to stop it.
// A second Start while already playing returns the existing handle.
// Initialization failures (missing file, unusable audio device) are
// returned to the caller; they must not block the rest of the activation.
func (a *AudioAlert) Start(ctx context.Context) (*AudioHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != nil {
		return a.active, nil
	}

	file, err := os.Open(a.soundPath)
	if err != nil {
		return nil, fmt.Errorf("open alert sound: %w", err)
	}

	streamer, format, err := mp3.Decode(file)
	if err != nil {
		file.Close() //nolint:errcheck,gosec // Best effort on the failure path.

		return nil, fmt.Errorf("decode alert sound: %w", err)
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBufferInterval)); err != nil {
		streamer.Close() //nolint:errcheck,gosec // Best effort on the failure path.

		return nil, fmt.Errorf("initialise speaker: %w", err)
	}

	speaker.Play(beep.Loop(-1, streamer))
	logger.Info(ctx, "Alert sound started")

	handle := &AudioHandle{}
	handle.stop = func() {
		speaker.Clear()
		streamer.Close() //nolint:errcheck,gosec // Stream is already detached from the speaker.

		a.mu.Lock()
		if a.active == handle {
			a.active = nil
		}
		a.mu.Unlock()

		logger.Info(ctx, "Alert sound stopped")
	}
	a.active = handle

	return handle, nil
}

// Stop ends the current playback session, if any.
func (a *AudioAlert) Stop() {
	a.mu.Lock()
	active := a.active
	a.mu.Unlock()

	active.Stop()
}
