package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// CachedQuizRepository caches quizzes with TTL to avoid repeated DB hits.
// Quizzes are immutable once published, so only deletion invalidates.
type CachedQuizRepository struct {
	backing app.QuizRepository
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rndMu   sync.Mutex
	rnd     *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewCachedQuizRepository(backing app.QuizRepository, ttl time.Duration) *CachedQuizRepository {
	return &CachedQuizRepository{
		backing: backing,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuiz),
	}
}

func (r *CachedQuizRepository) GetQuiz(ctx context.Context, ref string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(ref); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(ref, func() (interface{}, error) {
		if quiz, ok := r.lookup(ref); ok {
			return quiz, nil
		}

		quiz, err := r.backing.GetQuiz(ctx, ref)
		if err != nil {
			return domain.Quiz{}, err
		}

		entry := cachedQuiz{quiz: quiz, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Lock()
		r.cache[quiz.ID] = entry
		r.cache[quiz.Slug] = entry
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *CachedQuizRepository) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	return r.backing.CreateQuiz(ctx, quiz)
}

func (r *CachedQuizRepository) DeleteQuiz(ctx context.Context, quiz domain.Quiz) error {
	r.mu.Lock()
	delete(r.cache, quiz.ID)
	delete(r.cache, quiz.Slug)
	r.mu.Unlock()
	return r.backing.DeleteQuiz(ctx, quiz)
}

func (r *CachedQuizRepository) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return r.backing.ListQuizzes(ctx)
}

func (r *CachedQuizRepository) lookup(ref string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[ref]; ok && entry.expiresAt.After(now) {
		return entry.quiz, true
	}
	return domain.Quiz{}, false
}

func (r *CachedQuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// QuizStore is the in-memory quiz store (useful for tests/demos).
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore(seed ...domain.Quiz) *QuizStore {
	s := &QuizStore{quizzes: make(map[string]domain.Quiz, len(seed))}
	for _, q := range seed {
		s.quizzes[q.ID] = q
	}
	return s
}

func (s *QuizStore) GetQuiz(_ context.Context, ref string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quiz, ok := s.quizzes[ref]; ok {
		return quiz, nil
	}
	for _, quiz := range s.quizzes {
		if quiz.Matches(ref) {
			return quiz, nil
		}
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *QuizStore) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *QuizStore) DeleteQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quiz.ID)
	return nil
}

func (s *QuizStore) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		out = append(out, q)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
