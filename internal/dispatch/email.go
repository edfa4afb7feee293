package dispatch

import (
	"context"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/oshokin/sos-guard/internal/config"
	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/logger"
)

// sender abstracts the SMTP session so tests can count delivery attempts.
type sender interface {
	DialAndSend(messages ...*gomail.Message) error
}

// EmailDispatcher delivers messages through an SMTP transport.
type EmailDispatcher struct {
	// dialer opens the SMTP session, nil when credentials are missing.
	dialer sender
	// fromEmail is the outbound sender address.
	fromEmail string
	// now returns the current time, injectable for tests.
	now func() time.Time
}

// NewEmailDispatcher creates the email dispatcher. With incomplete
// credentials every attempt reports NotConfiguredReason without opening
// an SMTP session.
func NewEmailDispatcher(cfg *config.SMTPConfig) *EmailDispatcher {
	d := &EmailDispatcher{now: time.Now}

	if !cfg.Configured() {
		return d
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}

	d.dialer = gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	d.fromEmail = cfg.FromEmail

	return d
}

// Channel identifies the delivery mechanism.
func (d *EmailDispatcher) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Attempt sends one email to the contact.
func (d *EmailDispatcher) Attempt(ctx context.Context, contact string, payload *Payload) domain.DeliveryResult {
	if d.dialer == nil {
		return failed(contact, domain.ChannelEmail, NotConfiguredReason, d.now())
	}

	if contact == d.fromEmail {
		return failed(contact, domain.ChannelEmail, selfDeliveryReason, d.now())
	}

	message := gomail.NewMessage()
	message.SetHeader("From", d.fromEmail)
	message.SetHeader("To", contact)
	message.SetHeader("Subject", payload.Subject)
	message.SetBody("text/plain", payload.Text)

	if err := d.dialer.DialAndSend(message); err != nil {
		logger.WarnKV(ctx, "Email delivery failed", "contact", contact, "error", err)

		return failed(contact, domain.ChannelEmail, err.Error(), d.now())
	}

	logger.InfoKV(ctx, "Email sent", "contact", contact)

	// SMTP assigns no retrievable id, so the reference stays empty.
	return sent(contact, domain.ChannelEmail, "", d.now())
}
