package dispatch

import (
	"context"
	"time"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/oshokin/sos-guard/internal/config"
	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/logger"
)

// SMSDispatcher delivers text messages through the Twilio SMS gateway.
type SMSDispatcher struct {
	// client is the Twilio REST client, nil when credentials are missing.
	client *twilio.RestClient
	// fromNumber is the outbound sender number.
	fromNumber string
	// now returns the current time, injectable for tests.
	now func() time.Time
}

// NewSMSDispatcher creates the SMS dispatcher. With incomplete credentials
// the dispatcher is still constructed but every attempt reports
// NotConfiguredReason without touching the network.
func NewSMSDispatcher(cfg *config.TwilioConfig) *SMSDispatcher {
	d := &SMSDispatcher{now: time.Now}

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
func (d *SMSDispatcher) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Attempt sends one SMS to the contact.
func (d *SMSDispatcher) Attempt(ctx context.Context, contact string, payload *Payload) domain.DeliveryResult {
	if d.client == nil {
		return failed(contact, domain.ChannelSMS, NotConfiguredReason, d.now())
	}

	if contact == d.fromNumber {
		return failed(contact, domain.ChannelSMS, selfDeliveryReason, d.now())
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(contact)
	params.SetFrom(d.fromNumber)
	params.SetBody(payload.Text)

	resp, err := d.client.Api.CreateMessage(params)
	if err != nil {
		logger.WarnKV(ctx, "SMS delivery failed", "contact", contact, "error", err)

		return failed(contact, domain.ChannelSMS, err.Error(), d.now())
	}

	var reference string
	if resp.Sid != nil {
		reference = *resp.Sid
	}

	logger.InfoKV(ctx, "SMS sent", "contact", contact, "sid", reference)

	return sent(contact, domain.ChannelSMS, reference, d.now())
}
