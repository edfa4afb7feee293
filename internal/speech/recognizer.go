package speech

import (
	"context"
	"errors"
	"io"
)

// Recognizer converts one short captured audio frame into text.
//
// Listen blocks for at most one frame. ErrNoSpeech is the recoverable
// outcome (silence, unintelligible audio): callers keep looping. Any other
// error is a hard transport failure and terminates the caller's loop.
type Recognizer interface {
	Listen(ctx context.Context) (string, error)
}

// FrameSource supplies captured audio frames to a recognizer.
// Implementations typically wrap a microphone capture pipeline.
type FrameSource interface {
	// NextFrame blocks until a frame is available and returns it as a
	// readable stream. It returns ErrNoSpeech when the capture window
	// closed without usable audio.
	NextFrame(ctx context.Context) (io.ReadCloser, error)
}

var (
	// ErrNoSpeech indicates the capture window produced no recognizable speech.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrNotConfigured indicates the recognition backend has no credentials.
	ErrNotConfigured = errors.New("speech recognition is not configured")
)
