package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

type responseKey struct {
	attemptID string
	index     int
}

// AttemptStore is an in-memory implementation of app.AttemptRepository. A single
// mutex makes the existence check and insert one step, so the at-most-one
// response per question rule holds even under concurrent submissions.
type AttemptStore struct {
	mu        sync.Mutex
	seq       int64
	attempts  map[string]domain.Attempt
	responses map[string][]domain.Response
	locked    map[responseKey]struct{}
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.Attempt),
		responses: make(map[string][]domain.Response),
		locked:    make(map[responseKey]struct{}),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, quizID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.QuizID == quizID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *AttemptStore) DeleteAttempts(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.attempts {
		if a.QuizID != quizID {
			continue
		}
		for _, r := range s.responses[id] {
			delete(s.locked, responseKey{attemptID: id, index: r.QuestionIndex})
		}
		delete(s.responses, id)
		delete(s.attempts, id)
	}
	return nil
}

func (s *AttemptStore) AppendResponse(_ context.Context, response domain.Response) (domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[response.AttemptID]
	if !ok {
		return domain.Response{}, domain.ErrAttemptNotFound
	}
	if attempt.Finished() {
		return domain.Response{}, domain.ErrAttemptFinished
	}
	key := responseKey{attemptID: response.AttemptID, index: response.QuestionIndex}
	if _, taken := s.locked[key]; taken {
		return domain.Response{}, domain.ErrAlreadyAnswered
	}
	s.seq++
	response.Seq = s.seq
	response.Locked = true
	s.locked[key] = struct{}{}
	s.responses[response.AttemptID] = append(s.responses[response.AttemptID], response)
	return response, nil
}

func (s *AttemptStore) ListResponses(_ context.Context, attemptID string) ([]domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedLocked(attemptID), nil
}

func (s *AttemptStore) FinishAttempt(_ context.Context, attemptID string, finish app.FinishFunc) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, false, domain.ErrAttemptNotFound
	}
	if attempt.Finished() {
		return attempt, false, nil
	}
	completion, err := finish(attempt, s.orderedLocked(attemptID))
	if err != nil {
		return domain.Attempt{}, false, err
	}
	attempt = completion.Apply(attempt)
	s.attempts[attemptID] = attempt
	return attempt, true, nil
}

func (s *AttemptStore) orderedLocked(attemptID string) []domain.Response {
	out := append([]domain.Response(nil), s.responses[attemptID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AcceptedAt.Equal(out[j].AcceptedAt) {
			return out[i].AcceptedAt.Before(out[j].AcceptedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
