package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the marker only while it still carries this claim's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type playClaim struct {
	monitor *app.DeadlineMonitor
	token   string
}

// PlayRegistry is a Redis-aware implementation of app.PlayRegistry.
// Notes:
//   - Monitors live in a local map; the countdown itself is in-process.
//   - Redis holds an "attempt:play:{id}" marker set with NX, so a second
//     instance cannot start a second countdown for the same attempt.
//   - The marker value is a per-claim token; release only deletes a marker
//     that still carries it.
//   - The marker outlives a timed countdown by grace, and expires after ttl
//     for untimed quizzes, so a crashed instance never locks an attempt forever.
type PlayRegistry struct {
	client *redis.Client
	ttl    time.Duration
	grace  time.Duration

	mu     sync.RWMutex
	claims map[string]playClaim
}

func NewPlayRegistry(client *redis.Client, ttl time.Duration) *PlayRegistry {
	return &PlayRegistry{
		client: client,
		ttl:    ttl,
		grace:  30 * time.Second,
		claims: make(map[string]playClaim),
	}
}

func (r *PlayRegistry) Claim(ctx context.Context, attemptID string, monitor *app.DeadlineMonitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claims[attemptID]; ok {
		return domain.ErrAttemptInPlay
	}

	ttl := r.ttl
	if limit := monitor.Limit(); limit > 0 {
		ttl = limit + r.grace
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(attemptID), token, ttl).Result()
	if err != nil {
		return domain.StorageError("claim play session", err)
	}
	if !ok {
		return domain.ErrAttemptInPlay
	}
	r.claims[attemptID] = playClaim{monitor: monitor, token: token}
	return nil
}

func (r *PlayRegistry) Get(attemptID string) (*app.DeadlineMonitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	claim, ok := r.claims[attemptID]
	return claim.monitor, ok
}

func (r *PlayRegistry) Release(ctx context.Context, attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claim, ok := r.claims[attemptID]
	if !ok {
		return
	}
	delete(r.claims, attemptID)
	// best-effort; the marker expires on its own
	_ = releaseScript.Run(ctx, r.client, []string{r.key(attemptID)}, claim.token).Err()
}

func (r *PlayRegistry) key(attemptID string) string {
	return fmt.Sprintf("attempt:play:%s", attemptID)
}
