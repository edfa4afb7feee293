// Package eventlog implements the durable, append-only record of SOS
// lifecycle and delivery events.
//
// The FileRecorder stores one timestamped line per event in a plain-text
// file and exposes a Recorder interface that the SOS controller depends on.
// Logging is best-effort durable: write failures are surfaced to the caller
// as errors but never abort an in-progress activation.
package eventlog
