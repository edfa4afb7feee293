package guard

import (
	"fmt"

	"github.com/oshokin/sos-guard/internal/config"
	"github.com/oshokin/sos-guard/internal/dispatch"
	domain "github.com/oshokin/sos-guard/internal/domain/sos"
)

// escalationVoiceScript is spoken by the fallback emergency call.
const escalationVoiceScript = "Emergency! No response from user. Immediate assistance required."

// smsTemplate is the text rendering of an emergency alert.
const smsTemplate = `EMERGENCY ALERT

I am in danger and need immediate help!

Location: %s
Maps: %s
Coordinates: %s

Please send help immediately!

Sent via SOS Guard`

// locationShareTemplate is the text rendering of a location update.
const locationShareTemplate = `Location update

I am sharing my current location with you.

Location: %s
Maps: %s
Coordinates: %s

Sent via SOS Guard`

// BuildContacts converts configured identifiers into contacts with channel
// affinity: phone numbers receive SMS and calls, email addresses receive email.
func BuildContacts(identifiers []string) []domain.Contact {
	contacts := make([]domain.Contact, 0, len(identifiers))

	for _, identifier := range identifiers {
		switch {
		case config.IsPhoneNumber(identifier):
			contacts = append(contacts, domain.Contact{
				Identifier: identifier,
				Channels:   []domain.Channel{domain.ChannelSMS, domain.ChannelCall},
			})
		case config.IsEmailAddress(identifier):
			contacts = append(contacts, domain.Contact{
				Identifier: identifier,
				Channels:   []domain.Channel{domain.ChannelEmail},
			})
		}
	}

	return contacts
}

// buildPayload renders the channel-specific messages for one activation.
func buildPayload(location *domain.LocationInfo, note string) *dispatch.Payload {
	coordinates := "Unknown"
	if location.Coordinates != nil {
		coordinates = fmt.Sprintf("%.6f, %.6f", location.Coordinates.Latitude, location.Coordinates.Longitude)
	}

	text := fmt.Sprintf(smsTemplate, location.Address, location.MapsLink, coordinates)
	if note != "" {
		text += "\n\nAdditional info: " + note
	}

	return &dispatch.Payload{
		Subject: "SOS EMERGENCY - LIVE LOCATION",
		Text:    text,
		VoiceScript: fmt.Sprintf(
			"Emergency! I am in danger and need immediate assistance. My location is %s. Please send help immediately.",
			location.Address),
	}
}

// buildLocationPayload renders the non-emergency location share messages.
func buildLocationPayload(location *domain.LocationInfo, note string) *dispatch.Payload {
	coordinates := "Unknown"
	if location.Coordinates != nil {
		coordinates = fmt.Sprintf("%.6f, %.6f", location.Coordinates.Latitude, location.Coordinates.Longitude)
	}

	text := fmt.Sprintf(locationShareTemplate, location.Address, location.MapsLink, coordinates)
	if note != "" {
		text += "\n\nNote: " + note
	}

	return &dispatch.Payload{
		Subject: "My Current Location",
		Text:    text,
	}
}
