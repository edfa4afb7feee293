package dispatch

import (
	"context"
	"time"

	domain "github.com/oshokin/sos-guard/internal/domain/sos"
)

// Payload carries the channel-specific renderings of one emergency message.
type Payload struct {
	// Subject is used by the email channel.
	Subject string
	// Text is the body for SMS and email.
	Text string
	// VoiceScript is spoken to the callee on the voice channel.
	VoiceScript string
}

// Dispatcher wraps exactly one external delivery mechanism.
//
// Attempt must contain every failure mode behind its boundary: auth errors,
// network errors, invalid contacts and provider rejections all come back as
// a failed DeliveryResult, never as a panic. A missing credential set makes
// every attempt fail immediately with NotConfiguredReason.
type Dispatcher interface {
	Channel() domain.Channel
	Attempt(ctx context.Context, contact string, payload *Payload) domain.DeliveryResult
}

// NotConfiguredReason is the failure text reported by a dispatcher whose
// provider credentials are absent.
const NotConfiguredReason = "not configured"

// selfDeliveryReason is the failure text for attempts that target the
// system's own outbound identifier.
const selfDeliveryReason = "refusing delivery to own sender identity"

// sent builds an accepted result.
func sent(contact string, channel domain.Channel, reference string, now time.Time) domain.DeliveryResult {
	return domain.DeliveryResult{
		Contact:   contact,
		Channel:   channel,
		Status:    domain.StatusSent,
		Reference: reference,
		Timestamp: now,
	}
}

// failed builds a failed result with the provided reason.
func failed(contact string, channel domain.Channel, reason string, now time.Time) domain.DeliveryResult {
	return domain.DeliveryResult{
		Contact:   contact,
		Channel:   channel,
		Status:    domain.StatusFailed,
		Error:     reason,
		Timestamp: now,
	}
}
