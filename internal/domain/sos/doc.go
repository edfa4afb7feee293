// Package sos contains core domain types for the SOS business logic.
//
// It defines the activation state machine vocabulary (ActivationState),
// delivery vocabulary (Channel, DeliveryResult, ActivationSummary), the
// contact model and the location bundle, with Clone helpers to avoid
// leaking internal references.
package sos
