// Package dispatch wraps the external delivery mechanisms behind one
// uniform Dispatcher contract: SMS and voice calls via Twilio, email via
// SMTP, plus the degenerate local audio alert.
//
// Every failure mode stays behind the dispatcher boundary and comes back as
// a failed DeliveryResult. Dispatchers constructed without credentials fail
// every attempt immediately with "not configured" instead of crashing the
// process, and no dispatcher will ever deliver to the system's own sender
// identity.
package dispatch
