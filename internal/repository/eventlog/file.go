package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/sos-guard/internal/config"
)

// Recorder defines the append-only event log the SOS controller writes to.
type Recorder interface {
	Append(ctx context.Context, message string) error
	Tail(ctx context.Context, n int) ([]string, error)
	Close() error
}

// FileRecorder persists timestamped events to a plain-text file.
// The file is created with a header on first use and opened in append mode
// for the lifetime of the process. Each Append is one atomic write+sync,
// which makes the log safe for concurrent writers.
type FileRecorder struct {
	// path is the filesystem location of the log file.
	path string
	// now returns the current time, injectable for tests.
	now func() time.Time
	// mu serialises writes and lazy opening.
	mu sync.Mutex
	// file is the append handle, opened on first use.
	file *os.File
}

// Option configures recorder behaviour.
type Option func(*FileRecorder)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *FileRecorder) {
		if now != nil {
			r.now = now
		}
	}
}

const (
	// header is written once when the log file is created.
	header = "SOS Guard Event Log\n" +
		"==================================================\n"

	// timestampLayout formats the per-entry timestamp.
	timestampLayout = "2006-01-02 15:04:05"
)

// NewFileRecorder creates a recorder that appends to the file at the provided path.
func NewFileRecorder(path string, opts ...Option) *FileRecorder {
	r := &FileRecorder{
		path: filepath.Clean(path),
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Append writes a single timestamped, newline-terminated entry.
// The entry is synced to disk before returning so recorded outcomes
// survive a crash of the process.
func (r *FileRecorder) Append(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.open(); err != nil {
		return err
	}

	entry := fmt.Sprintf("[%s] %s\n", r.now().Format(timestampLayout), message)
	if _, err := r.file.WriteString(entry); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w", err)
	}

	return nil
}

// Tail returns up to n most recent entries, oldest first.
// The header is not counted as an entry.
func (r *FileRecorder) Tail(_ context.Context, n int) ([]string, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read event log: %w", err)
	}

	var entries []string

	for _, line := range strings.Split(string(contents), "\n") {
		if strings.HasPrefix(line, "[") {
			entries = append(entries, line)
		}
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	return entries, nil
}

// Close releases the underlying file handle.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil

	return err
}

// open lazily opens the append handle, writing the header if the file is new.
// Caller must hold mu.
func (r *FileRecorder) open() error {
	if r.file != nil {
		return nil
	}

	_, statErr := os.Stat(r.path)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	if isNew {
		if _, err := file.WriteString(header); err != nil {
			file.Close() //nolint:errcheck,gosec // Best effort on the failure path.

			return fmt.Errorf("write event log header: %w", err)
		}
	}

	r.file = file

	return nil
}
