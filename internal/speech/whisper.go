package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oshokin/sos-guard/internal/config"
	"github.com/oshokin/sos-guard/internal/logger"
)

// WhisperRecognizer transcribes captured audio frames with the Whisper API.
type WhisperRecognizer struct {
	// client executes transcription requests.
	client *openai.Client
	// frames supplies captured audio.
	frames FrameSource
}

// NewWhisperRecognizer creates a recognizer backed by the Whisper API.
// Returns ErrNotConfigured when the API key is absent.
func NewWhisperRecognizer(cfg *config.OpenAIConfig, frames FrameSource) (*WhisperRecognizer, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &WhisperRecognizer{
		client: openai.NewClientWithConfig(clientConfig),
		frames: frames,
	}, nil
}

// Listen captures one frame and transcribes it.
// Silence and empty transcriptions come back as ErrNoSpeech; transcription
// transport failures are returned as-is and terminate the caller's loop.
func (r *WhisperRecognizer) Listen(ctx context.Context) (string, error) {
	frame, err := r.frames.NextFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSpeech) {
			return "", ErrNoSpeech
		}

		return "", fmt.Errorf("capture frame: %w", err)
	}
	defer frame.Close() //nolint:errcheck // Read-only stream.

	response, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   frame,
		FilePath: "frame.wav",
	})
	if err != nil {
		return "", fmt.Errorf("transcribe frame: %w", err)
	}

	text := strings.TrimSpace(response.Text)
	if text == "" {
		return "", ErrNoSpeech
	}

	logger.DebugKV(ctx, "Voice command heard", "text", text)

	return text, nil
}
