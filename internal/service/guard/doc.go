// Package guard implements the SOS controller: the process-wide activation
// state machine and the orchestration of one activation cycle.
//
// Activate gates on the rate limiter, resolves a fresh location, fans
// delivery tasks out concurrently with a bounded per-task join, starts the
// local audio alert and arms the delayed escalation fallback. Deactivate
// tears the cycle down idempotently. The voice trigger listener runs as an
// independent background task that emits a trigger event consumed by the
// controller, never calling back into it from its own loop.
package guard
