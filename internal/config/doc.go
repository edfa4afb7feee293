// Package config loads, validates and persists settings for the sos-guard
// binary: emergency contacts, provider credentials (Twilio, SMTP, OpenAI),
// file locations and the timing knobs of the activation cycle.
//
// Missing provider credentials never fail validation; the affected dispatcher
// reports "not configured" on every attempt instead.
package config
