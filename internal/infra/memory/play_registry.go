package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// PlayRegistry is an in-memory implementation of app.PlayRegistry.
type PlayRegistry struct {
	mu       sync.RWMutex
	monitors map[string]*app.DeadlineMonitor
}

func NewPlayRegistry() *PlayRegistry {
	return &PlayRegistry{
		monitors: make(map[string]*app.DeadlineMonitor),
	}
}

func (r *PlayRegistry) Claim(_ context.Context, attemptID string, monitor *app.DeadlineMonitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.monitors[attemptID]; ok {
		return domain.ErrAttemptInPlay
	}
	r.monitors[attemptID] = monitor
	return nil
}

func (r *PlayRegistry) Get(attemptID string) (*app.DeadlineMonitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	monitor, ok := r.monitors[attemptID]
	return monitor, ok
}

func (r *PlayRegistry) Release(_ context.Context, attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.monitors, attemptID)
}
