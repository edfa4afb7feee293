// Package speech defines the speech-to-text boundary used by the voice
// trigger listener and provides a Whisper-backed implementation.
//
// The listener only ever sees the Recognizer interface: per-attempt
// recoverable failures are signalled with ErrNoSpeech, everything else is a
// hard transport error.
package speech
