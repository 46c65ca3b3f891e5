package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFinisher struct {
	calls atomic.Int32
	taken atomic.Int64
}

func (f *countingFinisher) finish(_ context.Context, timeTaken time.Duration) (domain.Attempt, error) {
	f.calls.Add(1)
	f.taken.Store(int64(timeTaken))
	score := 0
	return domain.Attempt{ID: "a1", State: domain.AttemptFinished, Score: &score}, nil
}

func TestMonitorExpiryFinishesOnce(t *testing.T) {
	f := &countingFinisher{}
	m := NewDeadlineMonitor("a1", 30*time.Millisecond, f.finish)
	m.Start()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not expire")
	}
	outcome, err := m.Result()
	require.NoError(t, err)
	assert.True(t, outcome.TimedOut)
	assert.LessOrEqual(t, outcome.Elapsed, 30*time.Millisecond)

	// natural completion after expiry observes the expiry outcome
	again, err := m.Complete(context.Background())
	require.NoError(t, err)
	assert.True(t, again.TimedOut)
	assert.Equal(t, int32(1), f.calls.Load())

	_, ok := m.Track()
	assert.False(t, ok, "submissions are refused after the trigger")
}

func TestMonitorFinishIgnoresCallerCancellation(t *testing.T) {
	calls := 0
	finish := func(ctx context.Context, _ time.Duration) (domain.Attempt, error) {
		calls++
		if err := ctx.Err(); err != nil {
			return domain.Attempt{}, err
		}
		if _, ok := ctx.Deadline(); !ok {
			t.Error("finish should run with a deadline")
		}
		score := 2
		return domain.Attempt{ID: "a1", State: domain.AttemptFinished, Score: &score}, nil
	}
	m := NewDeadlineMonitor("a1", time.Hour, finish, WithFinishTimeout(time.Second))
	m.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := m.Complete(ctx)
	require.NoError(t, err)
	require.NotNil(t, outcome.Attempt.Score)
	assert.Equal(t, 2, *outcome.Attempt.Score)

	again, err := m.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, *again.Attempt.Score)
	assert.Equal(t, 1, calls)
}

func TestMonitorCompleteBeatsDeadline(t *testing.T) {
	f := &countingFinisher{}
	m := NewDeadlineMonitor("a1", time.Hour, f.finish)
	m.Start()

	outcome, err := m.Complete(context.Background())
	require.NoError(t, err)
	assert.False(t, outcome.TimedOut)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestMonitorConcurrentTriggers(t *testing.T) {
	f := &countingFinisher{}
	m := NewDeadlineMonitor("a1", 5*time.Millisecond, f.finish)
	m.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Complete(context.Background())
		}()
	}
	wg.Wait()
	<-m.Done()
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestMonitorDrainsInflightSubmissions(t *testing.T) {
	var landed atomic.Bool
	finish := func(context.Context, time.Duration) (domain.Attempt, error) {
		if !landed.Load() {
			t.Error("finish ran before the in-flight submission completed")
		}
		return domain.Attempt{ID: "a1"}, nil
	}
	m := NewDeadlineMonitor("a1", 10*time.Millisecond, finish)
	m.Start()

	done, ok := m.Track()
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond) // deadline passes while the submission is in flight
	landed.Store(true)
	done()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not finish")
	}
}

func TestMonitorStopDisarms(t *testing.T) {
	f := &countingFinisher{}
	m := NewDeadlineMonitor("a1", 10*time.Millisecond, f.finish)
	m.Start()
	m.Stop()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestMonitorUntimedElapsed(t *testing.T) {
	now := t0
	f := &countingFinisher{}
	m := NewDeadlineMonitor("a1", 0, f.finish, WithMonitorClock(func() time.Time { return now }))
	m.Start()
	now = now.Add(90 * time.Second)

	assert.Equal(t, time.Duration(0), m.Remaining())
	outcome, err := m.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, outcome.Elapsed)
	assert.Equal(t, int64(90*time.Second), f.taken.Load())
}

// The last answer and the deadline race: the persisted score reflects exactly
// the responses stored before the single finish.
func TestDeadlineRaceWithLastAnswer(t *testing.T) {
	quiz := capitalsQuiz()
	store := newRaceStore()

	finish := func(ctx context.Context, timeTaken time.Duration) (domain.Attempt, error) {
		score, _ := Score(quiz, Reconcile(store.list(), len(quiz.Questions)))
		return store.finish(score), nil
	}
	m := NewDeadlineMonitor("a1", 5*time.Millisecond, finish)
	m.Start()

	var wg sync.WaitGroup
	for i, option := range []string{"Paris", "Berlin", "Rome"} {
		wg.Add(1)
		go func(i int, option string) {
			defer wg.Done()
			done, ok := m.Track()
			if !ok {
				return
			}
			defer done()
			store.append(resp(int64(i+1), i, option, time.Duration(i)))
		}(i, option)
	}
	wg.Wait()
	<-m.Done()

	outcome, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, store.stored(), *outcome.Attempt.Score)
	assert.Equal(t, 1, store.finishes())
}

type raceStore struct {
	mu        sync.Mutex
	responses []domain.Response
	finished  int
}

func newRaceStore() *raceStore { return &raceStore{} }

func (s *raceStore) append(r domain.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished > 0 {
		return
	}
	s.responses = append(s.responses, r)
}

func (s *raceStore) list() []domain.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Response(nil), s.responses...)
}

func (s *raceStore) finish(score int) domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	return domain.Attempt{ID: "a1", State: domain.AttemptFinished, Score: &score}
}

func (s *raceStore) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

func (s *raceStore) finishes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}
