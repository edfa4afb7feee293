package safety

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oshokin/sos-guard/internal/config"
	"github.com/oshokin/sos-guard/internal/logger"
	"github.com/oshokin/sos-guard/internal/repository/eventlog"
)

// Service answers "is this location safe to travel at this time" questions
// through a chat-completion backend, caching answers per (location, time)
// pair and appending every query to a history log.
type Service struct {
	// client executes chat-completion requests.
	client *openai.Client
	// model is the chat model used for assessments.
	model string
	// history records queries and responses, best effort.
	history eventlog.Recorder
	// mu protects cache.
	mu sync.Mutex
	// cache stores cleaned responses keyed by normalized location and time.
	cache map[string]string
}

// ErrNotConfigured indicates the chat backend has no credentials.
var ErrNotConfigured = errors.New("safety assistant is not configured")

const (
	// defaultModel is used when no model is configured.
	defaultModel = "gpt-4o-mini"

	// maxResponseTokens bounds the assessment length.
	maxResponseTokens = 400

	// systemPrompt frames the assistant's role.
	systemPrompt = "You are a travel safety assistant. Given a location and a time of " +
		"travel, assess how safe the trip is based on known crime trends and " +
		"situational factors. Structure every answer as: Risk Level (Safe / " +
		"Moderate Risk / High Risk), Incident Insights, Precaution Tips, and " +
		"Alternative Routes when the area is risky. Keep the tone simple, " +
		"friendly and practical."
)

// NewService creates the safety-check service.
// Returns ErrNotConfigured when the API key is absent.
func NewService(cfg *config.OpenAIConfig, history eventlog.Recorder) (*Service, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Service{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		history: history,
		cache:   make(map[string]string),
	}, nil
}

// CheckSafety returns a cleaned safety assessment for traveling to the
// location at the given time. Repeated queries for the same pair are served
// from the in-memory cache without another backend call.
func (s *Service) CheckSafety(ctx context.Context, location, travelTime string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(location)) + "_" + strings.ToLower(strings.TrimSpace(travelTime))

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()

	if ok {
		logger.InfoKV(ctx, "Safety status served from cache", "location", location, "time", travelTime)

		return cached, nil
	}

	response, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: maxResponseTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Assess the safety of traveling to %s at %s.",
					location, travelTime),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("safety assessment: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errors.New("safety assessment: empty response")
	}

	assessment := response.Choices[0].Message.Content
	assessment += "\nMaps: " + mapsSearchLink(location)

	cleaned := CleanForSpeech(assessment)

	s.mu.Lock()
	s.cache[key] = cleaned
	s.mu.Unlock()

	s.logQuery(ctx, location, travelTime, cleaned)

	return cleaned, nil
}

// logQuery appends the query and its response to the history log, best effort.
func (s *Service) logQuery(ctx context.Context, location, travelTime, response string) {
	if s.history == nil {
		return
	}

	entry := fmt.Sprintf("Safety check - location: %s, time: %s, response: %s", location, travelTime, response)
	if err := s.history.Append(ctx, entry); err != nil {
		logger.ErrorKV(ctx, "Failed to append safety history", "error", err)
	}
}

// mapsSearchLink builds a Google Maps search URL for the location.
func mapsSearchLink(location string) string {
	return "https://www.google.com/maps/search/" + url.PathEscape(strings.ReplaceAll(location, " ", "+"))
}

var (
	// markdownHeaders matches "### Heading" lines.
	markdownHeaders = regexp.MustCompile(`###[^\n]*\n?`)
	// markdownMarks matches emphasis and code markers.
	markdownMarks = regexp.MustCompile("[*`]")
	// whitespaceRuns matches consecutive whitespace including newlines.
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// CleanForSpeech strips markdown decoration so the text reads naturally
// both on screen and through a text-to-speech engine.
func CleanForSpeech(text string) string {
	text = markdownHeaders.ReplaceAllString(text, "")
	text = markdownMarks.ReplaceAllString(text, "")
	text = whitespaceRuns.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
