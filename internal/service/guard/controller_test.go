package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-guard/internal/dispatch"
	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/ratelimit"
)

// memoryRecorder is an in-memory Recorder implementation for tests.
type memoryRecorder struct {
	// mu protects entries.
	mu sync.Mutex
	// entries are the appended messages, without timestamps.
	entries []string
	// appendErr is returned from every Append when set.
	appendErr error
}

// Append stores the message.
func (m *memoryRecorder) Append(_ context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return m.appendErr
	}

	m.entries = append(m.entries, message)

	return nil
}

// Tail returns all stored messages.
func (m *memoryRecorder) Tail(context.Context, int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.entries...), nil
}

// Close is a no-op.
func (m *memoryRecorder) Close() error { return nil }

// count returns how many stored messages contain the substring.
func (m *memoryRecorder) count(substring string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for _, entry := range m.entries {
		if strings.Contains(entry, substring) {
			n++
		}
	}

	return n
}

// stubResolver returns a canned location and counts invocations.
type stubResolver struct {
	// mu protects calls.
	mu sync.Mutex
	// calls is the number of Resolve invocations.
	calls int
	// info is returned from every Resolve.
	info *domain.LocationInfo
}

// Resolve returns the canned location.
func (s *stubResolver) Resolve(context.Context, *domain.Coordinates) *domain.LocationInfo {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.info != nil {
		return s.info
	}

	return &domain.LocationInfo{
		Address:  "Kolkata, IN",
		MapsLink: "https://www.google.com/maps?q=22.5726,88.3639",
		Source:   domain.SourceApproximate,
	}
}

// stubAudio counts Start/Stop invocations.
type stubAudio struct {
	// mu protects the counters.
	mu sync.Mutex
	// starts is the number of Start invocations.
	starts int
	// stops is the number of Stop invocations.
	stops int
	// startErr is returned from Start when set.
	startErr error
}

// Start records the invocation.
func (s *stubAudio) Start(context.Context) (*dispatch.AudioHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startErr != nil {
		return nil, s.startErr
	}

	s.starts++

	return &dispatch.AudioHandle{}, nil
}

// Stop records the invocation.
func (s *stubAudio) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stops++
}

// stubDispatcher is a scriptable Dispatcher that counts attempts.
type stubDispatcher struct {
	// channel is the advertised delivery mechanism.
	channel domain.Channel
	// mu protects attempts and targets.
	mu sync.Mutex
	// attempts is the number of Attempt invocations.
	attempts int
	// targets records every contacted identifier.
	targets []string
	// fail makes every attempt report this failure reason when non-empty.
	fail string
	// delay is slept before responding.
	delay time.Duration
}

// Channel identifies the delivery mechanism.
func (s *stubDispatcher) Channel() domain.Channel { return s.channel }

// Attempt records the invocation and returns the scripted outcome.
func (s *stubDispatcher) Attempt(_ context.Context, contact string, _ *dispatch.Payload) domain.DeliveryResult {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.attempts++
	s.targets = append(s.targets, contact)
	s.mu.Unlock()

	if s.fail != "" {
		return domain.DeliveryResult{
			Contact: contact, Channel: s.channel,
			Status: domain.StatusFailed, Error: s.fail, Timestamp: time.Now(),
		}
	}

	return domain.DeliveryResult{
		Contact: contact, Channel: s.channel,
		Status: domain.StatusSent, Reference: fmt.Sprintf("ref-%d", s.attempts), Timestamp: time.Now(),
	}
}

// attemptCount returns the recorded number of attempts.
func (s *stubDispatcher) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempts
}

// newTestController assembles a controller over stubs for the given contacts.
func newTestController(
	t *testing.T,
	contacts []string,
	opts ...Option,
) (*Controller, *memoryRecorder, *stubAudio, map[domain.Channel]*stubDispatcher) {
	t.Helper()

	recorder := &memoryRecorder{}
	audio := &stubAudio{}
	dispatchers := map[domain.Channel]*stubDispatcher{
		domain.ChannelSMS:   {channel: domain.ChannelSMS},
		domain.ChannelCall:  {channel: domain.ChannelCall},
		domain.ChannelEmail: {channel: domain.ChannelEmail},
	}

	options := append([]Option{
		WithDispatchTimeout(time.Second),
		WithEscalationDelay(time.Hour),
	}, opts...)

	controller := NewController(
		BuildContacts(contacts),
		ratelimit.New(time.Minute),
		&stubResolver{},
		recorder,
		[]dispatch.Dispatcher{
			dispatchers[domain.ChannelSMS],
			dispatchers[domain.ChannelCall],
			dispatchers[domain.ChannelEmail],
		},
		audio,
		options...,
	)

	return controller, recorder, audio, dispatchers
}

// TestActivate_FullFanout covers the happy path: a phone contact gets SMS and
// a call, an email contact gets email, every result is sent and logged.
func TestActivate_FullFanout(t *testing.T) {
	t.Parallel()

	controller, recorder, audio, dispatchers := newTestController(t, []string{"+15551230001", "a@b.com"})
	ctx := context.Background()

	summary, err := controller.Activate(ctx, nil, "")
	require.NoError(t, err)
	require.NotNil(t, summary)
	require.NotEmpty(t, summary.ID)

	// 1 phone x (sms + call) + 1 email x email = 3 results.
	require.Len(t, summary.Results, 3)
	require.True(t, summary.Succeeded())

	for _, result := range summary.Results {
		require.True(t, result.Sent())
	}

	require.Equal(t, 1, dispatchers[domain.ChannelSMS].attemptCount())
	require.Equal(t, 1, dispatchers[domain.ChannelCall].attemptCount())
	require.Equal(t, 1, dispatchers[domain.ChannelEmail].attemptCount())

	require.Equal(t, domain.StateActive, controller.State())

	audio.mu.Lock()
	require.Equal(t, 1, audio.starts)
	audio.mu.Unlock()

	// Every delivery outcome was logged, plus the lifecycle entries.
	require.Equal(t, 1, recorder.count("SOS EMERGENCY ACTIVATED"))
	require.Equal(t, 1, recorder.count("sms sent to +15551230001"))
	require.Equal(t, 1, recorder.count("call sent to +15551230001"))
	require.Equal(t, 1, recorder.count("email sent to a@b.com"))
	require.Equal(t, 1, recorder.count("3/3 deliveries accepted"))
}

// TestActivate_AlreadyActive asserts the idempotent rejection: no new
// delivery results, no state change.
func TestActivate_AlreadyActive(t *testing.T) {
	t.Parallel()

	controller, _, _, dispatchers := newTestController(t, []string{"+15551230001"})
	ctx := context.Background()

	_, err := controller.Activate(ctx, nil, "")
	require.NoError(t, err)

	attemptsBefore := dispatchers[domain.ChannelSMS].attemptCount()

	summary, err := controller.Activate(ctx, nil, "")
	require.ErrorIs(t, err, ErrAlreadyActive)
	require.Nil(t, summary)
	require.Equal(t, attemptsBefore, dispatchers[domain.ChannelSMS].attemptCount())
	require.Equal(t, domain.StateActive, controller.State())
}

// TestActivate_RateLimited covers the interval contract: accept at t=0,
// reject at t=10 even after deactivation, accept at t=61.
func TestActivate_RateLimited(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		current = time.Unix(0, 0)
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()

		current = current.Add(d)
	}

	limiter := ratelimit.New(60*time.Second, ratelimit.WithClock(clock))
	recorder := &memoryRecorder{}
	sms := &stubDispatcher{channel: domain.ChannelSMS}

	controller := NewController(
		BuildContacts([]string{"+15551230001"}),
		limiter,
		&stubResolver{},
		recorder,
		[]dispatch.Dispatcher{sms},
		&stubAudio{},
		WithClock(clock),
		WithDispatchTimeout(time.Second),
		WithEscalationDelay(time.Hour),
	)

	ctx := context.Background()

	// t=0: accepted.
	first, err := controller.Activate(ctx, nil, "")
	require.NoError(t, err)
	require.Equal(t, time.Unix(0, 0), limiter.LastAccepted())

	// t=5: deactivate, t=10: rejected by rate limit, timestamp untouched.
	advance(5 * time.Second)
	controller.Deactivate(ctx)

	advance(5 * time.Second)

	summary, err := controller.Activate(ctx, nil, "")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Nil(t, summary)
	require.Equal(t, time.Unix(0, 0), limiter.LastAccepted())
	require.Equal(t, domain.StateIdle, controller.State())

	// t=61: accepted with a fresh summary.
	advance(51 * time.Second)

	second, err := controller.Activate(ctx, nil, "")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, time.Unix(61, 0), second.Timestamp)
}

// TestActivate_EmptyContactList asserts activation still runs the audio
// alert, yields zero results and reports overall failure.
func TestActivate_EmptyContactList(t *testing.T) {
	t.Parallel()

	controller, _, audio, dispatchers := newTestController(t, nil)

	summary, err := controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)
	require.Empty(t, summary.Results)
	require.False(t, summary.Succeeded())

	audio.mu.Lock()
	require.Equal(t, 1, audio.starts)
	audio.mu.Unlock()

	for _, d := range dispatchers {
		require.Zero(t, d.attemptCount())
	}
}

// TestActivate_PartialFailure asserts one failing channel never blocks the
// others and the summary still reports overall success.
func TestActivate_PartialFailure(t *testing.T) {
	t.Parallel()

	controller, recorder, _, dispatchers := newTestController(t, []string{"+15551230001"})
	dispatchers[domain.ChannelCall].fail = "provider rejection"

	summary, err := controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	require.True(t, summary.Succeeded())

	require.Equal(t, 1, recorder.count("call failed to +15551230001: provider rejection"))
	require.Equal(t, 1, recorder.count("1/2 deliveries accepted"))
}

// TestActivate_SlowDispatcherTimesOut verifies the bounded per-task join:
// a task outliving the timeout is recorded as failed without blocking the
// summary.
func TestActivate_SlowDispatcherTimesOut(t *testing.T) {
	t.Parallel()

	controller, _, _, dispatchers := newTestController(t, []string{"+15551230001"},
		WithDispatchTimeout(50*time.Millisecond))
	dispatchers[domain.ChannelCall].delay = time.Second

	start := time.Now()
	summary, err := controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)

	var timedOut bool

	for _, result := range summary.Results {
		if result.Channel == domain.ChannelCall {
			require.Equal(t, domain.StatusFailed, result.Status)
			require.Equal(t, "timed out waiting for provider", result.Error)

			timedOut = true
		}
	}

	require.True(t, timedOut)
}

// TestActivate_AudioFailureDoesNotBlockDispatch asserts an unusable audio
// subsystem is surfaced in the log but never prevents deliveries.
func TestActivate_AudioFailureDoesNotBlockDispatch(t *testing.T) {
	t.Parallel()

	controller, recorder, audio, dispatchers := newTestController(t, []string{"+15551230001"})
	audio.startErr = errors.New("no audio device")

	summary, err := controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)
	require.True(t, summary.Succeeded())
	require.Equal(t, 1, dispatchers[domain.ChannelSMS].attemptCount())
	require.Equal(t, 1, recorder.count("Alert sound unavailable"))
}

// TestActivate_RecorderFailureDoesNotAbort asserts event-log write failures
// are swallowed and the activation still completes.
func TestActivate_RecorderFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	controller, recorder, _, _ := newTestController(t, []string{"+15551230001"})
	recorder.appendErr = errors.New("disk full")

	summary, err := controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)
	require.True(t, summary.Succeeded())
}

// TestDeactivate_Idempotent asserts a second deactivation produces no
// additional log entries.
func TestDeactivate_Idempotent(t *testing.T) {
	t.Parallel()

	controller, recorder, audio, _ := newTestController(t, []string{"+15551230001"})
	ctx := context.Background()

	_, err := controller.Activate(ctx, nil, "")
	require.NoError(t, err)

	controller.Deactivate(ctx)
	require.Equal(t, domain.StateIdle, controller.State())
	require.Equal(t, 1, recorder.count("SOS system deactivated"))

	audio.mu.Lock()
	require.Equal(t, 1, audio.stops)
	audio.mu.Unlock()

	controller.Deactivate(ctx)
	require.Equal(t, domain.StateIdle, controller.State())
	require.Equal(t, 1, recorder.count("SOS system deactivated"))

	audio.mu.Lock()
	require.Equal(t, 1, audio.stops, "idle deactivation must not stop audio again")
	audio.mu.Unlock()
}

// TestEscalation_FiresWhileActive asserts the fallback call targets the
// first phone contact once the delay elapses with the system still active.
func TestEscalation_FiresWhileActive(t *testing.T) {
	t.Parallel()

	controller, _, _, dispatchers := newTestController(t, []string{"a@b.com", "+15551230001"},
		WithEscalationDelay(30*time.Millisecond))

	_, err := controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)

	call := dispatchers[domain.ChannelCall]
	require.Eventually(t, func() bool {
		call.mu.Lock()
		defer call.mu.Unlock()

		return len(call.targets) == 1 && call.targets[0] == "+15551230001"
	}, time.Second, 10*time.Millisecond)
}

// TestEscalation_UsesEmergencyNumberWithoutPhoneContacts asserts the
// configured emergency number is dialed when no contact can receive calls.
func TestEscalation_UsesEmergencyNumberWithoutPhoneContacts(t *testing.T) {
	t.Parallel()

	controller, _, _, dispatchers := newTestController(t, []string{"a@b.com"},
		WithEscalationDelay(30*time.Millisecond),
		WithEmergencyNumber("112"))

	_, err := controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)

	call := dispatchers[domain.ChannelCall]
	require.Eventually(t, func() bool {
		call.mu.Lock()
		defer call.mu.Unlock()

		return len(call.targets) == 1 && call.targets[0] == "112"
	}, time.Second, 10*time.Millisecond)
}

// TestEscalation_SuppressedAfterDeactivate asserts a deactivated system
// never places the fallback call.
func TestEscalation_SuppressedAfterDeactivate(t *testing.T) {
	t.Parallel()

	controller, _, _, dispatchers := newTestController(t, []string{"+15551230001"},
		WithEscalationDelay(60*time.Millisecond))

	ctx := context.Background()

	_, err := controller.Activate(ctx, nil, "")
	require.NoError(t, err)

	controller.Deactivate(ctx)
	attemptsAfterCycle := dispatchers[domain.ChannelCall].attemptCount()

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, attemptsAfterCycle, dispatchers[domain.ChannelCall].attemptCount())
}

// TestSendLocation_TextChannelsOnly asserts a location share reaches SMS and
// email but never dials, plays audio or changes state.
func TestSendLocation_TextChannelsOnly(t *testing.T) {
	t.Parallel()

	controller, recorder, audio, dispatchers := newTestController(t, []string{"+15551230001", "a@b.com"})

	results, err := controller.SendLocation(context.Background(), nil, "on my way home")
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, 1, dispatchers[domain.ChannelSMS].attemptCount())
	require.Equal(t, 1, dispatchers[domain.ChannelEmail].attemptCount())
	require.Zero(t, dispatchers[domain.ChannelCall].attemptCount())
	require.Zero(t, audio.starts)
	require.Equal(t, domain.StateIdle, controller.State())
	require.Equal(t, 1, recorder.count("Location shared"))

	// Sharing does not consume the activation rate limit.
	_, err = controller.Activate(context.Background(), nil, "")
	require.NoError(t, err)
	controller.Deactivate(context.Background())
}

// TestSendLocation_RateLimited asserts repeat shares inside the minimum
// interval are rejected by their own gate, independent of the activation
// limiter.
func TestSendLocation_RateLimited(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		current = time.Unix(0, 0)
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()

		current = current.Add(d)
	}

	controller, _, _, dispatchers := newTestController(t, []string{"+15551230001"},
		WithShareLimiter(ratelimit.New(60*time.Second, ratelimit.WithClock(clock))))

	ctx := context.Background()

	// t=0: accepted.
	results, err := controller.SendLocation(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	// t=10: rejected, nothing dispatched.
	advance(10 * time.Second)

	results, err = controller.SendLocation(ctx, nil, "")
	require.ErrorIs(t, err, ErrShareRateLimited)
	require.Nil(t, results)
	require.Equal(t, 1, dispatchers[domain.ChannelSMS].attemptCount())

	// The share gate does not consume the activation limiter.
	_, err = controller.Activate(ctx, nil, "")
	require.NoError(t, err)
	controller.Deactivate(ctx)

	// t=61: accepted again.
	advance(51 * time.Second)

	results, err = controller.SendLocation(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
}

// TestSendLocation_NoTextContacts covers the empty fanout path.
func TestSendLocation_NoTextContacts(t *testing.T) {
	t.Parallel()

	controller, recorder, _, _ := newTestController(t, nil)

	results, err := controller.SendLocation(context.Background(), nil, "")
	require.NoError(t, err)
	require.Empty(t, results)
	require.Zero(t, recorder.count("Location shared"))
}

// TestBuildContacts covers channel affinity assignment.
func TestBuildContacts(t *testing.T) {
	t.Parallel()

	contacts := BuildContacts([]string{"+15551230001", "a@b.com", "not/valid"})
	require.Len(t, contacts, 2)
	require.Equal(t, []domain.Channel{domain.ChannelSMS, domain.ChannelCall}, contacts[0].Channels)
	require.Equal(t, []domain.Channel{domain.ChannelEmail}, contacts[1].Channels)
}

// TestBuildPayload covers message rendering with and without coordinates.
func TestBuildPayload(t *testing.T) {
	t.Parallel()

	payload := buildPayload(&domain.LocationInfo{
		Coordinates: &domain.Coordinates{Latitude: 28.6129, Longitude: 77.2295},
		Address:     "New Delhi, IN",
		MapsLink:    "https://www.google.com/maps?q=28.612900,77.229500&z=16",
		Source:      domain.SourcePrecise,
	}, "third floor")

	require.Contains(t, payload.Text, "New Delhi, IN")
	require.Contains(t, payload.Text, "28.612900, 77.229500")
	require.Contains(t, payload.Text, "Additional info: third floor")
	require.Contains(t, payload.VoiceScript, "New Delhi, IN")
	require.Equal(t, "SOS EMERGENCY - LIVE LOCATION", payload.Subject)

	degraded := buildPayload(&domain.LocationInfo{
		Address:  "Unknown",
		MapsLink: "Location unavailable",
		Source:   domain.SourceUnavailable,
	}, "")
	require.Contains(t, degraded.Text, "Coordinates: Unknown")
	require.NotContains(t, degraded.Text, "Additional info")
}
