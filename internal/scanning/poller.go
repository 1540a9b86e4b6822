package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the wait between attempts when none is configured
const DefaultPollInterval = 30 * time.Second

// maxRetrieved caps how many retrieved session ids a Poller remembers.
// Older sessions are covered by the marker persisted in the session store.
const maxRetrieved = 64

// State is the poll loop state
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateFound     State = "found"
	StateCancelled State = "cancelled"
	StateExhausted State = "exhausted"
)

// PollPolicy bounds the poll loop. Zero MaxAttempts and Timeout mean unbounded.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// PollHandlers receive the outcome of a poll loop. They run on the poll
// goroutine and must not call Start.
type PollHandlers struct {
	// Found is called exactly once with the session's payload
	Found func(EncryptedPayload)

	// Exhausted is called when the policy bound is hit
	Exhausted func(err error)
}

// Poller queries the backend for a session's payload until it arrives,
// the caller cancels, or the policy gives up. At most one loop is live.
type Poller struct {
	backend    Backend
	policy     PollPolicy
	timeSource TimeSource

	mu        sync.Mutex
	state     State
	sessionID string
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	retrieved map[string]time.Time
	order     []string
}

// NewPoller creates a new Poller
func NewPoller(backend Backend, policy PollPolicy) *Poller {
	return NewPollerWithDeps(backend, policy, defaultTimeSource{})
}

// NewPollerWithDeps creates a new Poller with a custom time source for testing
func NewPollerWithDeps(backend Backend, policy PollPolicy, timeSrc TimeSource) *Poller {
	if policy.Interval <= 0 {
		policy.Interval = DefaultPollInterval
	}
	return &Poller{
		backend:    backend,
		policy:     policy,
		timeSource: timeSrc,
		state:      StateIdle,
		retrieved:  make(map[string]time.Time),
	}
}

// Start cancels any live loop, waits for it to exit, then polls sessionID:
// one attempt immediately and one per interval afterwards.
func (p *Poller) Start(ctx context.Context, sessionID string, h PollHandlers) error {
	p.mu.Lock()
	if _, ok := p.retrieved[sessionID]; ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPayloadRetrieved, sessionID)
	}

	prevCancel, prevDone := p.cancel, p.done

	var loopCtx context.Context
	var cancel context.CancelFunc
	if p.policy.Timeout > 0 {
		loopCtx, cancel = context.WithTimeoutCause(ctx, p.policy.Timeout, ErrPollExhausted)
	} else {
		loopCtx, cancel = context.WithCancel(ctx)
	}
	done := make(chan struct{})

	p.gen++
	gen := p.gen
	p.state = StatePolling
	p.sessionID = sessionID
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go p.run(loopCtx, gen, sessionID, h, done)
	return nil
}

// Cancel stops the live loop, if any. It does not wait for it to exit.
// A payload returned by an attempt already in flight is still delivered.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.state == StatePolling {
		p.state = StateCancelled
	}
}

// Wait blocks until the most recently started loop has exited
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns the current loop state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SessionID returns the session of the most recently started loop
func (p *Poller) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func (p *Poller) run(ctx context.Context, gen uint64, sessionID string, h PollHandlers, done chan struct{}) {
	defer close(done)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			p.stopped(ctx, gen, sessionID, attempt-1, h)
			return
		}

		ciphertext, err := p.backend.GetEncryptedData(ctx, sessionID)
		// a payload the backend handed over is never dropped, even if the
		// loop was cancelled or timed out while the attempt was in flight
		if err == nil && ciphertext != "" {
			p.found(gen, sessionID, ciphertext, attempt, h)
			return
		}
		if ctx.Err() != nil {
			p.stopped(ctx, gen, sessionID, attempt, h)
			return
		}
		if err != nil {
			slog.Warn("Poll attempt failed",
				"session_id", sessionID,
				"error", &TransientPollError{SessionID: sessionID, Attempt: attempt, Err: err},
			)
		} else {
			slog.Debug("Scan not ready", "session_id", sessionID, "attempt", attempt)
		}

		if p.policy.MaxAttempts > 0 && attempt >= p.policy.MaxAttempts {
			p.exhausted(gen, sessionID, attempt, h)
			return
		}

		timer := time.NewTimer(p.policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.stopped(ctx, gen, sessionID, attempt, h)
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) found(gen uint64, sessionID, ciphertext string, attempt int, h PollHandlers) {
	now := p.timeSource.Now()

	p.mu.Lock()
	p.markRetrieved(sessionID, now)
	// Cancel may have run during the attempt; the payload still belongs to this loop
	current := gen == p.gen && (p.state == StatePolling || p.state == StateCancelled)
	if current {
		p.state = StateFound
	}
	p.mu.Unlock()

	if !current {
		slog.Warn("Dropping payload for superseded poll", "session_id", sessionID)
		return
	}

	slog.Info("Scan payload retrieved", "session_id", sessionID, "attempts", attempt)
	if h.Found != nil {
		h.Found(EncryptedPayload{
			SessionID:   sessionID,
			Ciphertext:  ciphertext,
			RetrievedAt: now,
		})
	}
}

// stopped handles context cancellation, which is either the policy timeout
// or an explicit cancel
func (p *Poller) stopped(ctx context.Context, gen uint64, sessionID string, attempts int, h PollHandlers) {
	if errors.Is(context.Cause(ctx), ErrPollExhausted) {
		p.exhausted(gen, sessionID, attempts, h)
		return
	}

	p.mu.Lock()
	if gen == p.gen && p.state == StatePolling {
		p.state = StateCancelled
	}
	p.mu.Unlock()
	slog.Debug("Polling cancelled", "session_id", sessionID, "attempts", attempts)
}

func (p *Poller) exhausted(gen uint64, sessionID string, attempts int, h PollHandlers) {
	p.mu.Lock()
	current := gen == p.gen && p.state == StatePolling
	if current {
		p.state = StateExhausted
	}
	p.mu.Unlock()
	if !current {
		return
	}

	slog.Warn("Polling gave up", "session_id", sessionID, "attempts", attempts)
	if h.Exhausted != nil {
		h.Exhausted(fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempts))
	}
}

// markRetrieved records sessionID, forgetting the oldest entry past maxRetrieved.
// Callers hold p.mu.
func (p *Poller) markRetrieved(sessionID string, at time.Time) {
	if _, ok := p.retrieved[sessionID]; !ok {
		p.order = append(p.order, sessionID)
	}
	p.retrieved[sessionID] = at
	for len(p.order) > maxRetrieved {
		delete(p.retrieved, p.order[0])
		p.order = p.order[1:]
	}
}
