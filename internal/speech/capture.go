package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// minFrameBytes is the smallest capture output still worth transcribing.
// A bare WAV header with no samples is well under this.
const minFrameBytes = 1024

// defaultFrameSeconds is the capture window for one utterance.
const defaultFrameSeconds = 4

// ErrNoCaptureTool indicates no supported recorder binary was found in PATH.
var ErrNoCaptureTool = errors.New("no audio capture tool found (arecord or sox required)")

// MicSource captures fixed-length WAV frames from the default input device
// by shelling out to a recorder binary. arecord is preferred, the sox `rec`
// frontend is the fallback.
type MicSource struct {
	// binary is the resolved recorder executable.
	binary string
	// args is the argument list producing one WAV frame on stdout.
	args []string
}

// NewMicSource locates a recorder binary and builds a frame source with the
// given capture window. Returns ErrNoCaptureTool when neither arecord nor
// rec is installed.
func NewMicSource(frameSeconds int) (*MicSource, error) {
	if frameSeconds <= 0 {
		frameSeconds = defaultFrameSeconds
	}

	seconds := strconv.Itoa(frameSeconds)

	if path, err := exec.LookPath("arecord"); err == nil {
		return &MicSource{
			binary: path,
			args:   []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-d", seconds, "-t", "wav", "-"},
		}, nil
	}

	if path, err := exec.LookPath("rec"); err == nil {
		return &MicSource{
			binary: path,
			args:   []string{"-q", "-c", "1", "-r", "16000", "-b", "16", "-t", "wav", "-", "trim", "0", seconds},
		}, nil
	}

	return nil, ErrNoCaptureTool
}

// NextFrame records one capture window and returns it as a WAV stream.
// Windows that produced no usable audio come back as ErrNoSpeech.
func (m *MicSource) NextFrame(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, m.binary, m.args...) //nolint:gosec // Binary resolved via LookPath at construction.

	var out bytes.Buffer

	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("record frame: %w", err)
	}

	if out.Len() < minFrameBytes {
		return nil, ErrNoSpeech
	}

	return io.NopCloser(bytes.NewReader(out.Bytes())), nil
}
