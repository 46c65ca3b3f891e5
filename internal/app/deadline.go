package app

import (
	"context"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Finisher issues the finish operation on behalf of a monitor.
type Finisher func(ctx context.Context, timeTaken time.Duration) (domain.Attempt, error)

// FinishOutcome is what the single finish trigger produced. TimedOut is
// session context only; it is never persisted on the attempt.
type FinishOutcome struct {
	Attempt  domain.Attempt
	TimedOut bool
	Elapsed  time.Duration
}

// DeadlineMonitor is the countdown of one play session. Whichever of natural
// completion and expiry arrives first triggers finish; the other observes the
// same outcome. Submissions tracked before the trigger are allowed to complete
// before finish runs.
type DeadlineMonitor struct {
	attemptID     string
	limit         time.Duration
	finish        Finisher
	now           func() time.Time
	finishTimeout time.Duration

	mu       sync.Mutex
	started  time.Time
	timer    *time.Timer
	closing  bool
	inflight sync.WaitGroup

	once    sync.Once
	done    chan struct{}
	outcome FinishOutcome
	err     error
}

// MonitorOption customizes a DeadlineMonitor.
type MonitorOption func(*DeadlineMonitor)

// WithMonitorClock is test-only for deterministic elapsed times.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *DeadlineMonitor) { m.now = now }
}

// WithMonitorLimit overrides the quiz time limit of timed quizzes.
func WithMonitorLimit(limit time.Duration) MonitorOption {
	return func(m *DeadlineMonitor) {
		if m.limit > 0 {
			m.limit = limit
		}
	}
}

// WithFinishTimeout bounds the finish call.
func WithFinishTimeout(d time.Duration) MonitorOption {
	return func(m *DeadlineMonitor) { m.finishTimeout = d }
}

// NewDeadlineMonitor builds an unarmed monitor. A zero limit means untimed.
func NewDeadlineMonitor(attemptID string, limit time.Duration, finish Finisher, opts ...MonitorOption) *DeadlineMonitor {
	m := &DeadlineMonitor{
		attemptID:     attemptID,
		limit:         limit,
		finish:        finish,
		now:           time.Now,
		finishTimeout: 10 * time.Second,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AttemptID returns the attempt this monitor guards.
func (m *DeadlineMonitor) AttemptID() string { return m.attemptID }

// Limit is zero for untimed quizzes.
func (m *DeadlineMonitor) Limit() time.Duration { return m.limit }

// Start begins the countdown; call it when the first question is presented.
// Repeated calls are no-ops.
func (m *DeadlineMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started.IsZero() || m.closing {
		return
	}
	m.started = m.now()
	if m.limit > 0 {
		m.timer = time.AfterFunc(m.limit, m.expire)
	}
}

// Track registers an in-flight submission. ok is false once finish has been
// triggered; the caller must then not submit. done must be called exactly once.
func (m *DeadlineMonitor) Track() (done func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return nil, false
	}
	m.inflight.Add(1)
	var once sync.Once
	return func() { once.Do(m.inflight.Done) }, true
}

// Remaining is the time left on the countdown, never negative.
func (m *DeadlineMonitor) Remaining() time.Duration {
	if m.limit <= 0 {
		return 0
	}
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started.IsZero() {
		return m.limit
	}
	left := m.limit - m.now().Sub(started)
	if left < 0 {
		return 0
	}
	return left
}

// Elapsed is the session time since Start.
func (m *DeadlineMonitor) Elapsed() time.Duration {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	return m.now().Sub(started)
}

// Complete is the natural finish path (last question locked or explicit finish).
// If expiry already won, it returns the expiry outcome. The finish outlives
// cancellation of ctx since its outcome is shared with every later caller.
func (m *DeadlineMonitor) Complete(ctx context.Context) (FinishOutcome, error) {
	m.trigger(ctx, false)
	return m.outcome, m.err
}

// Done is closed after the single finish trigger has returned.
func (m *DeadlineMonitor) Done() <-chan struct{} { return m.done }

// Result is valid after Done is closed.
func (m *DeadlineMonitor) Result() (FinishOutcome, error) {
	<-m.done
	return m.outcome, m.err
}

// Stop disarms the countdown without finishing, for untimed sessions that end
// before completion.
func (m *DeadlineMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *DeadlineMonitor) expire() {
	m.trigger(context.Background(), true)
}

func (m *DeadlineMonitor) trigger(ctx context.Context, timedOut bool) {
	m.once.Do(func() {
		defer close(m.done)

		m.mu.Lock()
		m.closing = true
		if m.timer != nil {
			m.timer.Stop()
		}
		m.mu.Unlock()

		// in-flight submissions land before finish reads the ledger
		m.inflight.Wait()

		elapsed := m.Elapsed()
		if timedOut && elapsed > m.limit {
			elapsed = m.limit
		}
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.finishTimeout)
		defer cancel()
		attempt, err := m.finish(finishCtx, elapsed)
		m.outcome = FinishOutcome{Attempt: attempt, TimedOut: timedOut, Elapsed: elapsed}
		m.err = err
	})
}
