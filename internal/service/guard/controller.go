package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/sos-guard/internal/dispatch"
	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/logger"
	"github.com/oshokin/sos-guard/internal/ratelimit"
	"github.com/oshokin/sos-guard/internal/repository/eventlog"
	"github.com/oshokin/sos-guard/internal/service/common"
)

// LocationResolver produces the location bundle for an activation.
type LocationResolver interface {
	Resolve(ctx context.Context, hint *domain.Coordinates) *domain.LocationInfo
}

// AudioAlert controls the local looping alert sound.
type AudioAlert interface {
	Start(ctx context.Context) (*dispatch.AudioHandle, error)
	Stop()
}

// Controller owns the process-wide activation state machine and coordinates
// the rate limiter, location resolver, event log and channel dispatchers to
// execute one activation cycle.
type Controller struct {
	// contacts is the immutable emergency contact list.
	contacts []domain.Contact
	// limiter gates repeat activations.
	limiter *ratelimit.Limiter
	// shareLimiter gates repeat location shares, independently of limiter.
	shareLimiter *ratelimit.Limiter
	// resolver produces a fresh location per activation.
	resolver LocationResolver
	// recorder is the durable event log.
	recorder eventlog.Recorder
	// dispatchers are the configured delivery channels.
	dispatchers []dispatch.Dispatcher
	// audio is the local alert channel.
	audio AudioAlert
	// actor identifies who operates this instance, for the audit trail.
	actor *common.Actor

	// emergencyNumber is dialed by the escalation fallback when the
	// contact list has no phone numbers.
	emergencyNumber string
	// dispatchTimeout bounds the join wait for each delivery task.
	dispatchTimeout time.Duration
	// escalationDelay is how long the system stays active before the
	// fallback call fires.
	escalationDelay time.Duration

	// now returns the current time, injectable for tests.
	now func() time.Time
	// newID generates activation ids.
	newID func() string

	// mu protects state, audio/listener handles and the escalation timer.
	mu sync.Mutex
	// state is the current position in the activation cycle.
	state domain.ActivationState
	// audioHandle is the running playback session, nil when silent.
	audioHandle *dispatch.AudioHandle
	// listener is the running voice trigger listener, nil when stopped.
	listener *VoiceListener
	// escalation is the pending fallback-call timer, nil when unscheduled.
	escalation *time.Timer
}

// Option configures controller behaviour.
type Option func(*Controller)

// WithEmergencyNumber sets the number dialed when no phone contact exists.
func WithEmergencyNumber(number string) Option {
	return func(c *Controller) {
		if number != "" {
			c.emergencyNumber = number
		}
	}
}

// WithDispatchTimeout bounds the per-task join wait during fanout.
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.dispatchTimeout = timeout
		}
	}
}

// WithEscalationDelay sets the delay before the fallback call fires.
func WithEscalationDelay(delay time.Duration) Option {
	return func(c *Controller) {
		if delay > 0 {
			c.escalationDelay = delay
		}
	}
}

// WithShareLimiter overrides the limiter gating location shares.
func WithShareLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Controller) {
		if limiter != nil {
			c.shareLimiter = limiter
		}
	}
}

// WithActor sets the audit-trail actor.
func WithActor(actor *common.Actor) Option {
	return func(c *Controller) {
		c.actor = actor
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides activation id generation. Intended for tests.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) {
		if newID != nil {
			c.newID = newID
		}
	}
}

var (
	// ErrAlreadyActive is returned when Activate is called while a cycle
	// is already in progress. Not an error condition worth logging beyond
	// a warning: the rejection is idempotent and has no side effects.
	ErrAlreadyActive = errors.New("SOS is already active")
	// ErrRateLimited is returned when the minimum interval between
	// activations has not elapsed yet.
	ErrRateLimited = errors.New("SOS activation rejected by rate limit")
	// ErrShareRateLimited is returned when the minimum interval between
	// location shares has not elapsed yet.
	ErrShareRateLimited = errors.New("location share rejected by rate limit")
)

const (
	// defaultEmergencyNumber is dialed when nothing else is configured.
	defaultEmergencyNumber = "911"
	// defaultDispatchTimeout bounds the per-task join wait.
	defaultDispatchTimeout = 10 * time.Second
	// defaultEscalationDelay precedes the fallback call.
	defaultEscalationDelay = 30 * time.Second
	// defaultShareInterval is the minimum time between location shares.
	defaultShareInterval = 60 * time.Second
)

// NewController creates the SOS controller.
func NewController(
	contacts []domain.Contact,
	limiter *ratelimit.Limiter,
	resolver LocationResolver,
	recorder eventlog.Recorder,
	dispatchers []dispatch.Dispatcher,
	audio AudioAlert,
	opts ...Option,
) *Controller {
	c := &Controller{
		contacts:        contacts,
		limiter:         limiter,
		shareLimiter:    ratelimit.New(defaultShareInterval),
		resolver:        resolver,
		recorder:        recorder,
		dispatchers:     dispatchers,
		audio:           audio,
		emergencyNumber: defaultEmergencyNumber,
		dispatchTimeout: defaultDispatchTimeout,
		escalationDelay: defaultEscalationDelay,
		now:             time.Now,
		newID:           uuid.NewString,
		state:           domain.StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current activation state.
func (c *Controller) State() domain.ActivationState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// dispatchTask is one (contact, channel) delivery unit of the fanout.
type dispatchTask struct {
	// contact is the destination identifier.
	contact string
	// dispatcher executes the delivery.
	dispatcher dispatch.Dispatcher
}

// Activate runs one full activation cycle: rate-limit gate, location
// resolution, concurrent dispatch to every (contact, channel) pair, the
// local audio alert and the delayed escalation fallback.
//
// A call while a cycle is in progress returns ErrAlreadyActive without side
// effects; a call within the minimum interval returns ErrRateLimited without
// touching state or contacts. Every delivery outcome is written to the event
// log before the summary is returned.
func (c *Controller) Activate(ctx context.Context, hint *domain.Coordinates, note string) (*domain.ActivationSummary, error) {
	c.mu.Lock()

	if c.state != domain.StateIdle {
		c.mu.Unlock()
		logger.WarnKV(ctx, "SOS already active, activation ignored", "state", c.state.String())

		return nil, ErrAlreadyActive
	}

	if !c.limiter.Allow() {
		c.mu.Unlock()
		logger.WarnKV(ctx, "SOS activation rate limited", "retry_in", c.limiter.Remaining().String())

		return nil, ErrRateLimited
	}

	c.state = domain.StateActivating
	c.mu.Unlock()

	activatedAt := c.now()
	c.logEvent(ctx, fmt.Sprintf("SOS EMERGENCY ACTIVATED by %s", c.actor))

	// Location is resolved fresh for every activation; the resolver bounds
	// its own lookups and never fails.
	location := c.resolver.Resolve(ctx, hint)

	c.mu.Lock()
	c.state = domain.StateActive
	c.mu.Unlock()

	c.startAudio(ctx)
	c.scheduleEscalation(ctx)

	payload := buildPayload(location, note)
	tasks := c.buildTasks()

	logger.InfoKV(ctx, "SOS fanout starting",
		"contacts", len(c.contacts), "tasks", len(tasks), "location_source", string(location.Source))

	results := c.fanOut(ctx, tasks, payload)

	summary := &domain.ActivationSummary{
		ID:        c.newID(),
		Timestamp: activatedAt,
		Location:  location,
		Results:   results,
	}

	c.logEvent(ctx, fmt.Sprintf("SOS fanout finished: %d/%d deliveries accepted", sentCount(results), len(results)))

	return summary, nil
}

// Deactivate tears the cycle down: the audio alert, the voice listener and
// the pending escalation are stopped and the transition is logged.
// Idempotent: calling it while idle is a no-op.
func (c *Controller) Deactivate(ctx context.Context) {
	c.mu.Lock()

	if c.state == domain.StateIdle {
		c.mu.Unlock()
		logger.Debug(ctx, "SOS already idle, deactivation ignored")

		return
	}

	c.state = domain.StateDeactivating

	audioHandle := c.audioHandle
	c.audioHandle = nil

	listener := c.listener
	c.listener = nil

	if c.escalation != nil {
		c.escalation.Stop()
		c.escalation = nil
	}

	c.mu.Unlock()

	audioHandle.Stop()

	// The component-level stop also silences a playback session whose
	// handle was never stored.
	if c.audio != nil {
		c.audio.Stop()
	}

	listener.Stop()

	c.logEvent(ctx, "SOS system deactivated")

	c.mu.Lock()
	c.state = domain.StateIdle
	c.mu.Unlock()
}

// SendLocation shares the current location with every contact over the text
// channels (SMS and email). It runs outside the activation cycle: no state
// transition, no audio alert and no escalation fallback. Repeat shares are
// gated by their own minimum interval, independent of the activation limiter.
func (c *Controller) SendLocation(ctx context.Context, hint *domain.Coordinates, note string) ([]domain.DeliveryResult, error) {
	if !c.shareLimiter.Allow() {
		logger.WarnKV(ctx, "Location share rate limited", "retry_in", c.shareLimiter.Remaining().String())

		return nil, ErrShareRateLimited
	}

	location := c.resolver.Resolve(ctx, hint)
	payload := buildLocationPayload(location, note)

	tasks := make([]dispatchTask, 0, len(c.contacts))

	for _, task := range c.buildTasks() {
		switch task.dispatcher.Channel() {
		case domain.ChannelSMS, domain.ChannelEmail:
			tasks = append(tasks, task)
		case domain.ChannelCall, domain.ChannelAudio:
			// Location updates are text-only.
		}
	}

	if len(tasks) == 0 {
		logger.Warn(ctx, "No text-capable contacts configured, location not shared")

		return nil, nil
	}

	c.logEvent(ctx, fmt.Sprintf("Location shared: %s", location.Address))

	return c.fanOut(ctx, tasks, payload), nil
}

// buildTasks expands the contact list into (contact, channel) units using
// each contact's channel affinity.
func (c *Controller) buildTasks() []dispatchTask {
	byChannel := make(map[domain.Channel]dispatch.Dispatcher, len(c.dispatchers))
	for _, d := range c.dispatchers {
		byChannel[d.Channel()] = d
	}

	var tasks []dispatchTask

	for _, contact := range c.contacts {
		for _, channel := range contact.Channels {
			if d, ok := byChannel[channel]; ok {
				tasks = append(tasks, dispatchTask{contact: contact.Identifier, dispatcher: d})
			}
		}
	}

	return tasks
}

// fanOut runs every task in its own goroutine and collects the results.
// Delivery order across tasks is unspecified; failure of one task never
// cancels another. Each outcome is written to the event log as it arrives.
func (c *Controller) fanOut(ctx context.Context, tasks []dispatchTask, payload *dispatch.Payload) []domain.DeliveryResult {
	resultCh := make(chan domain.DeliveryResult, len(tasks))

	for _, task := range tasks {
		go func(task dispatchTask) {
			resultCh <- c.attemptWithTimeout(ctx, task, payload)
		}(task)
	}

	results := make([]domain.DeliveryResult, 0, len(tasks))

	for range tasks {
		result := <-resultCh
		c.logResult(ctx, &result)
		results = append(results, result)
	}

	return results
}

// attemptWithTimeout bounds the join wait for a single delivery task.
// A task that outlives the timeout keeps running fire-and-forget; its
// outcome is recorded as failed so the summary is never blocked on a slow
// provider. Panics from a dispatcher are contained here.
func (c *Controller) attemptWithTimeout(ctx context.Context, task dispatchTask, payload *dispatch.Payload) domain.DeliveryResult {
	done := make(chan domain.DeliveryResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- domain.DeliveryResult{
					Contact:   task.contact,
					Channel:   task.dispatcher.Channel(),
					Status:    domain.StatusFailed,
					Error:     fmt.Sprintf("dispatcher panic: %v", r),
					Timestamp: c.now(),
				}
			}
		}()

		done <- task.dispatcher.Attempt(ctx, task.contact, payload)
	}()

	select {
	case result := <-done:
		return result
	case <-time.After(c.dispatchTimeout):
		return domain.DeliveryResult{
			Contact:   task.contact,
			Channel:   task.dispatcher.Channel(),
			Status:    domain.StatusFailed,
			Error:     "timed out waiting for provider",
			Timestamp: c.now(),
		}
	case <-ctx.Done():
		return domain.DeliveryResult{
			Contact:   task.contact,
			Channel:   task.dispatcher.Channel(),
			Status:    domain.StatusFailed,
			Error:     ctx.Err().Error(),
			Timestamp: c.now(),
		}
	}
}

// startAudio begins the looping alert. Initialization failures are logged
// and recorded but never block the rest of the activation.
func (c *Controller) startAudio(ctx context.Context) {
	if c.audio == nil {
		return
	}

	handle, err := c.audio.Start(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Alert sound failed to start", "error", err)
		c.logEvent(ctx, fmt.Sprintf("Alert sound unavailable: %v", err))

		return
	}

	c.mu.Lock()
	c.audioHandle = handle
	c.mu.Unlock()
}

// scheduleEscalation arms the fallback call. When the delay elapses and the
// system is still active, a single call is placed to the first phone contact
// or, with no phone contacts, to the emergency number. The fallback fires
// whether or not earlier deliveries succeeded.
func (c *Controller) scheduleEscalation(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.escalation != nil {
		c.escalation.Stop()
	}

	c.escalation = time.AfterFunc(c.escalationDelay, func() {
		c.escalate(ctx)
	})
}

// escalate places the fallback call if the system is still active.
func (c *Controller) escalate(ctx context.Context) {
	if c.State() != domain.StateActive {
		return
	}

	target := c.emergencyNumber

	for _, contact := range c.contacts {
		if hasChannel(&contact, domain.ChannelCall) {
			target = contact.Identifier

			break
		}
	}

	var dialer dispatch.Dispatcher

	for _, d := range c.dispatchers {
		if d.Channel() == domain.ChannelCall {
			dialer = d

			break
		}
	}

	if dialer == nil {
		logger.Warn(ctx, "No voice dispatcher configured, escalation fallback skipped")

		return
	}

	logger.InfoKV(ctx, "No response detected, making automatic emergency call", "target", target)

	result := dialer.Attempt(ctx, target, &dispatch.Payload{
		VoiceScript: escalationVoiceScript,
	})
	c.logResult(ctx, &result)
}

// logEvent appends a line to the durable event log. Write failures are
// reported through the logger and swallowed: logging is best-effort durable,
// never a reason to abort an activation.
func (c *Controller) logEvent(ctx context.Context, message string) {
	if c.recorder == nil {
		return
	}

	if err := c.recorder.Append(ctx, message); err != nil {
		logger.ErrorKV(ctx, "Failed to append to event log", "error", err)
	}
}

// logResult records one delivery outcome in the event log.
func (c *Controller) logResult(ctx context.Context, result *domain.DeliveryResult) {
	if result.Sent() {
		message := fmt.Sprintf("%s sent to %s", result.Channel, result.Contact)
		if result.Reference != "" {
			message += " - SID: " + result.Reference
		}

		c.logEvent(ctx, message)

		return
	}

	c.logEvent(ctx, fmt.Sprintf("%s failed to %s: %s", result.Channel, result.Contact, result.Error))
}

// hasChannel reports whether the contact carries the channel affinity.
func hasChannel(contact *domain.Contact, channel domain.Channel) bool {
	for _, c := range contact.Channels {
		if c == channel {
			return true
		}
	}

	return false
}

// sentCount counts accepted deliveries.
func sentCount(results []domain.DeliveryResult) int {
	count := 0

	for i := range results {
		if results[i].Sent() {
			count++
		}
	}

	return count
}
