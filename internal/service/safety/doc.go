// Package safety implements the conversational location-safety check: one
// outbound chat-completion call per (location, time) pair, response cleanup
// for display and speech, a per-process result cache and a query history log.
package safety
