package dispatch

import (
	"bytes"
	"context"
	"encoding/xml"
	"time"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/oshokin/sos-guard/internal/config"
	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/logger"
)

// CallDispatcher places voice calls through the Twilio telephony gateway.
// The callee hears the payload's voice script read by the "alice" voice.
type CallDispatcher struct {
	// client is the Twilio REST client, nil when credentials are missing.
	client *twilio.RestClient
	// fromNumber is the outbound caller number.
	fromNumber string
	// now returns the current time, injectable for tests.
	now func() time.Time
}

// NewCallDispatcher creates the voice-call dispatcher. With incomplete
// credentials every attempt reports NotConfiguredReason without touching
// the network.
func NewCallDispatcher(cfg *config.TwilioConfig) *CallDispatcher {
	d := &CallDispatcher{now: time.Now}

	if !cfg.Configured() {
		return d
	}

	d.client = twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	d.fromNumber = cfg.FromNumber

	return d
}

// Channel identifies the delivery mechanism.
func (d *CallDispatcher) Channel() domain.Channel {
	return domain.ChannelCall
}

// Attempt places one call to the contact.
func (d *CallDispatcher) Attempt(ctx context.Context, contact string, payload *Payload) domain.DeliveryResult {
	if d.client == nil {
		return failed(contact, domain.ChannelCall, NotConfiguredReason, d.now())
	}

	if contact == d.fromNumber {
		return failed(contact, domain.ChannelCall, selfDeliveryReason, d.now())
	}

	params := &twilioapi.CreateCallParams{}
	params.SetTo(contact)
	params.SetFrom(d.fromNumber)
	params.SetTwiml(sayTwiml(payload.VoiceScript))

	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		logger.WarnKV(ctx, "Call delivery failed", "contact", contact, "error", err)

		return failed(contact, domain.ChannelCall, err.Error(), d.now())
	}

	var reference string
	if resp.Sid != nil {
		reference = *resp.Sid
	}

	logger.InfoKV(ctx, "Call initiated", "contact", contact, "sid", reference)

	return sent(contact, domain.ChannelCall, reference, d.now())
}

// sayTwiml renders the voice script as a minimal TwiML document.
func sayTwiml(script string) string {
	var escaped bytes.Buffer

	//nolint:errcheck // Writing to a bytes.Buffer cannot fail.
	xml.EscapeText(&escaped, []byte(script))

	return `<Response><Say voice="alice">` + escaped.String() + `</Say></Response>`
}
