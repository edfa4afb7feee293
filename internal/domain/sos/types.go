package sos

import "time"

// Channel is a distinct delivery mechanism for emergency notifications.
type Channel string

const (
	// ChannelSMS delivers a text message through the SMS gateway.
	ChannelSMS Channel = "sms"
	// ChannelCall places a voice call through the telephony gateway.
	ChannelCall Channel = "call"
	// ChannelEmail delivers a message through the SMTP transport.
	ChannelEmail Channel = "email"
	// ChannelAudio is the local looping alert, it has no contact or result.
	ChannelAudio Channel = "audio"
)

// ActivationState describes where the system is in its activation cycle.
type ActivationState int

const (
	// StateIdle means no activation is in progress. Initial and terminal per cycle.
	StateIdle ActivationState = iota
	// StateActivating means an activation is being prepared (location lookup, logging).
	StateActivating
	// StateActive means notifications have been dispatched and the alert is sounding.
	StateActive
	// StateDeactivating means a deactivation is tearing the cycle down.
	StateDeactivating
)

// String returns a human-readable state name.
func (s ActivationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// Contact is a single emergency contact loaded from configuration.
// Immutable once loaded.
type Contact struct {
	// Identifier is a phone number in E.164 format or an email address.
	Identifier string
	// Channels lists the delivery mechanisms applicable to this contact.
	Channels []Channel
}

// Clone returns a deep copy of the contact.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}

	cloned := &Contact{
		Identifier: c.Identifier,
		Channels:   make([]Channel, len(c.Channels)),
	}
	copy(cloned.Channels, c.Channels)

	return cloned
}

// LocationSource tags how a location was obtained.
type LocationSource string

const (
	// SourcePrecise means the caller supplied device coordinates.
	SourcePrecise LocationSource = "precise"
	// SourceApproximate means the location came from IP geolocation.
	SourceApproximate LocationSource = "approximate"
	// SourceUnavailable means no location could be determined.
	SourceUnavailable LocationSource = "unavailable"
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	// Latitude in decimal degrees.
	Latitude float64
	// Longitude in decimal degrees.
	Longitude float64
}

// LocationInfo is a best-effort location bundle produced fresh per activation.
// It is never cached: a stale location during a real emergency is worse than
// an approximate one.
type LocationInfo struct {
	// Coordinates is nil when the source is unavailable.
	Coordinates *Coordinates
	// Address is the resolved human-readable address, or a sentinel string.
	Address string
	// MapsLink is a URL opening the location in Google Maps, or a
	// degraded message when the location is unavailable.
	MapsLink string
	// Source tags how the location was obtained.
	Source LocationSource
}

// Clone returns a deep copy of the location info.
func (l *LocationInfo) Clone() *LocationInfo {
	if l == nil {
		return nil
	}

	cloned := *l
	if l.Coordinates != nil {
		coords := *l.Coordinates
		cloned.Coordinates = &coords
	}

	return &cloned
}

// DeliveryStatus is the terminal outcome of one delivery attempt.
type DeliveryStatus string

const (
	// StatusSent means the provider accepted the message.
	StatusSent DeliveryStatus = "sent"
	// StatusFailed means the attempt did not reach the provider or was rejected.
	StatusFailed DeliveryStatus = "failed"
)

// DeliveryResult records the outcome of a single (contact, channel) attempt.
// Immutable once recorded.
type DeliveryResult struct {
	// Contact is the destination identifier.
	Contact string
	// Channel is the delivery mechanism used.
	Channel Channel
	// Status is the terminal outcome.
	Status DeliveryStatus
	// Reference is the provider-assigned id of the accepted message, if any.
	Reference string
	// Error describes the failure, empty on success.
	Error string
	// Timestamp is when the outcome was recorded.
	Timestamp time.Time
}

// Sent reports whether the attempt was accepted by the provider.
func (r *DeliveryResult) Sent() bool {
	return r != nil && r.Status == StatusSent
}

// ActivationSummary aggregates one full activation cycle.
type ActivationSummary struct {
	// ID uniquely identifies the activation.
	ID string
	// Timestamp is when the activation was accepted.
	Timestamp time.Time
	// Location is the location resolved for this activation.
	Location *LocationInfo
	// Results holds one entry per (contact, channel) attempt, in completion order.
	Results []DeliveryResult
}

// Succeeded reports whether at least one delivery was accepted.
func (s *ActivationSummary) Succeeded() bool {
	if s == nil {
		return false
	}

	for i := range s.Results {
		if s.Results[i].Sent() {
			return true
		}
	}

	return false
}
