package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-guard/internal/config"
)

// stubFrames returns canned frames and errors in order.
type stubFrames struct {
	// frames is returned one by one.
	frames []string
	// err replaces the next frame when set.
	err error
}

// NextFrame pops the next canned frame.
func (s *stubFrames) NextFrame(context.Context) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}

	if len(s.frames) == 0 {
		return nil, ErrNoSpeech
	}

	frame := s.frames[0]
	s.frames = s.frames[1:]

	return io.NopCloser(strings.NewReader(frame)), nil
}

// TestNewWhisperRecognizer_NotConfigured asserts missing credentials are
// rejected at construction.
func TestNewWhisperRecognizer_NotConfigured(t *testing.T) {
	t.Parallel()

	_, err := NewWhisperRecognizer(&config.OpenAIConfig{}, &stubFrames{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

// TestListen_TranscribesFrame wires the recognizer at a fake Whisper endpoint.
func TestListen_TranscribesFrame(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "transcriptions")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" help me please "}`)) //nolint:errcheck
	}))
	defer backend.Close()

	recognizer, err := NewWhisperRecognizer(
		&config.OpenAIConfig{APIKey: "sk-test", BaseURL: backend.URL},
		&stubFrames{frames: []string{"audio"}},
	)
	require.NoError(t, err)

	text, err := recognizer.Listen(context.Background())
	require.NoError(t, err)
	require.Equal(t, "help me please", text)
}

// TestListen_NoSpeechPaths covers silence from the capture side and an
// empty transcription from the backend.
func TestListen_NoSpeechPaths(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":""}`)) //nolint:errcheck
	}))
	defer backend.Close()

	recognizer, err := NewWhisperRecognizer(
		&config.OpenAIConfig{APIKey: "sk-test", BaseURL: backend.URL},
		&stubFrames{frames: []string{"audio"}},
	)
	require.NoError(t, err)

	// Empty transcription.
	_, err = recognizer.Listen(context.Background())
	require.ErrorIs(t, err, ErrNoSpeech)

	// Exhausted frames behave like silence.
	_, err = recognizer.Listen(context.Background())
	require.ErrorIs(t, err, ErrNoSpeech)
}

// TestListen_CaptureTransportError asserts hard capture failures are not
// mistaken for silence.
func TestListen_CaptureTransportError(t *testing.T) {
	t.Parallel()

	hardErr := errors.New("microphone unavailable")

	recognizer, err := NewWhisperRecognizer(
		&config.OpenAIConfig{APIKey: "sk-test"},
		&stubFrames{err: hardErr},
	)
	require.NoError(t, err)

	_, err = recognizer.Listen(context.Background())
	require.ErrorIs(t, err, hardErr)
	require.NotErrorIs(t, err, ErrNoSpeech)
}
