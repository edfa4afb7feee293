// Package location resolves a best-effort position for an SOS activation.
//
// Explicit device coordinates produce a precise result with a best-effort
// reverse-geocoded address; otherwise IP geolocation is used. The resolver
// never returns an error: every failure degrades to sentinel values so the
// activation cycle always has something to send.
package location
