// Package ratelimit gates repeat SOS activations.
//
// The Limiter performs an atomic check-and-set on the last-accepted
// timestamp so two racing activation attempts can never both pass
// within the minimum interval.
package ratelimit
