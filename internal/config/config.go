package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TwilioConfig holds credentials for the SMS and voice-call gateway.
type TwilioConfig struct {
	// AccountSID identifies the Twilio account.
	AccountSID string `yaml:"account_sid"`
	// AuthToken authenticates API requests.
	AuthToken string `yaml:"auth_token"`
	// FromNumber is the outbound sender number in E.164 format.
	FromNumber string `yaml:"from_number"`
}

// Configured reports whether all credentials required for delivery are present.
func (c *TwilioConfig) Configured() bool {
	return c != nil && c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// SMTPConfig holds credentials for the email transport.
type SMTPConfig struct {
	// Host is the SMTP server hostname.
	Host string `yaml:"host"`
	// Port is the SMTP server port.
	Port int `yaml:"port"`
	// Username authenticates the SMTP session.
	Username string `yaml:"username"`
	// Password authenticates the SMTP session.
	Password string `yaml:"password"`
	// FromEmail is the outbound sender address.
	FromEmail string `yaml:"from_email"`
}

// Configured reports whether all credentials required for delivery are present.
func (c *SMTPConfig) Configured() bool {
	return c != nil && c.Host != "" && c.Username != "" && c.Password != "" && c.FromEmail != ""
}

// OpenAIConfig holds credentials for the chat-completion and transcription backend.
type OpenAIConfig struct {
	// APIKey authenticates API requests.
	APIKey string `yaml:"api_key"`
	// BaseURL optionally points at an OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
	// Model is the chat model used for safety assessments.
	Model string `yaml:"model"`
}

// Configured reports whether the backend can be called.
func (c *OpenAIConfig) Configured() bool {
	return c != nil && c.APIKey != ""
}

// Config holds all settings for the sos-guard binary.
type Config struct {
	// Contacts is the ordered list of emergency contact identifiers,
	// phone numbers in E.164 format and/or email addresses.
	Contacts []string `yaml:"contacts"`
	// EmergencyNumber is dialed by the escalation fallback when the
	// contact list is empty.
	EmergencyNumber string `yaml:"emergency_number"`
	// Twilio configures the SMS and voice-call dispatchers.
	Twilio *TwilioConfig `yaml:"twilio"`
	// SMTP configures the email dispatcher.
	SMTP *SMTPConfig `yaml:"smtp"`
	// OpenAI configures the safety-check assistant and voice transcription.
	OpenAI *OpenAIConfig `yaml:"openai"`
	// EventLogFile is the path of the append-only SOS event log.
	EventLogFile string `yaml:"event_log_file"`
	// AlertSoundFile is the path of the looping local alert sound.
	AlertSoundFile string `yaml:"alert_sound_file"`
	// MinInterval is the minimum time between accepted activations.
	MinInterval time.Duration `yaml:"min_interval"`
	// DispatchTimeout bounds the wait for each delivery task during fanout.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	// EscalationDelay is how long the system stays active before the
	// fallback emergency call fires.
	EscalationDelay time.Duration `yaml:"escalation_delay"`
	// LocationTimeout bounds geolocation and reverse-geocoding requests.
	LocationTimeout time.Duration `yaml:"location_timeout"`
}

const (
	// DefaultConfigFilename is the default filename for sos-guard settings.
	DefaultConfigFilename = "sos-guard-settings.yaml"

	// DefaultEventLogFilename is the default filename for the SOS event log.
	DefaultEventLogFilename = "sos-guard-events.log"

	// DefaultAlertSoundFilename is the default filename for the alert sound.
	DefaultAlertSoundFilename = "alert.mp3"

	// DefaultEmergencyNumber is dialed when no contacts are configured.
	DefaultEmergencyNumber = "911"

	// DefaultMinInterval is the default minimum time between activations.
	DefaultMinInterval = 60 * time.Second

	// DefaultDispatchTimeout is the default per-task join timeout during fanout.
	DefaultDispatchTimeout = 10 * time.Second

	// DefaultEscalationDelay is the default delay before the fallback call.
	DefaultEscalationDelay = 30 * time.Second

	// DefaultLocationTimeout is the default timeout for location lookups.
	DefaultLocationTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBadContact is returned when a contact is neither a phone number nor an email address.
	errBadContact = errors.New("contact must be a phone number or an email address")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file holds provider credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks contacts for plausibility and fills in defaults.
// Missing provider credentials are legal: the corresponding dispatcher
// degrades to always-fail instead of blocking startup.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	for i, contact := range cfg.Contacts {
		contact = strings.TrimSpace(contact)
		if contact == "" || (!IsPhoneNumber(contact) && !IsEmailAddress(contact)) {
			return fmt.Errorf("%w: %q", errBadContact, cfg.Contacts[i])
		}

		cfg.Contacts[i] = contact
	}

	if cfg.EmergencyNumber == "" {
		cfg.EmergencyNumber = DefaultEmergencyNumber
	}

	if cfg.EventLogFile == "" {
		cfg.EventLogFile = DefaultEventLogFilename
	}

	if cfg.AlertSoundFile == "" {
		cfg.AlertSoundFile = DefaultAlertSoundFilename
	}

	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}

	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}

	if cfg.EscalationDelay <= 0 {
		cfg.EscalationDelay = DefaultEscalationDelay
	}

	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = DefaultLocationTimeout
	}

	return nil
}

// IsPhoneNumber reports whether the contact looks like a dialable number.
// Accepts an optional leading plus followed by digits.
func IsPhoneNumber(contact string) bool {
	s := strings.TrimPrefix(contact, "+")
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// IsEmailAddress reports whether the contact looks like an email address.
// Deliverability is ultimately decided by the SMTP server.
func IsEmailAddress(contact string) bool {
	at := strings.Index(contact, "@")

	return at > 0 && at < len(contact)-1 && !strings.Contains(contact, " ")
}
