package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedQuizRepository caches quiz definitions in Redis (hash per reference) and
// falls back to the backing store on cache miss. Both the id and the slug are
// cached, since participants arrive by slug and attempts reference the id:
//
//	HSET quiz:{ref} data {quiz json} token {owner token}
type CachedQuizRepository struct {
	client  *redis.Client
	backing app.QuizRepository
	ttl     time.Duration
	sf      singleflight.Group
	rndMu   sync.Mutex
	rnd     *rand.Rand
}

func NewCachedQuizRepository(client *redis.Client, backing app.QuizRepository, ttl time.Duration) *CachedQuizRepository {
	return &CachedQuizRepository{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CachedQuizRepository) GetQuiz(ctx context.Context, ref string) (domain.Quiz, error) {
	if quiz, ok := r.fromCache(ctx, ref); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(ref, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.fromCache(ctx, ref); ok {
			return quiz, nil
		}

		quiz, err := r.backing.GetQuiz(ctx, ref)
		if err != nil {
			return domain.Quiz{}, err
		}

		data, err := json.Marshal(quiz)
		if err != nil {
			return quiz, nil
		}
		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for _, key := range []string{r.key(quiz.ID), r.key(quiz.Slug)} {
			pipe.HSet(ctx, key, "data", data, "token", quiz.OwnerToken)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
		}
		_, _ = pipe.Exec(ctx)

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
	if err := r.client.Del(ctx, r.key(quiz.ID), r.key(quiz.Slug)).Err(); err != nil {
		return domain.StorageError("evict quiz", err)
	}
	return r.backing.DeleteQuiz(ctx, quiz)
}

func (r *CachedQuizRepository) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return r.backing.ListQuizzes(ctx)
}

func (r *CachedQuizRepository) fromCache(ctx context.Context, ref string) (domain.Quiz, bool) {
	fields, err := r.client.HGetAll(ctx, r.key(ref)).Result()
	if err != nil || fields["data"] == "" {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(fields["data"]), &quiz); err != nil {
		return domain.Quiz{}, false
	}
	quiz.OwnerToken = fields["token"]
	return quiz, true
}

func (r *CachedQuizRepository) key(ref string) string {
	return "quiz:" + ref
}

func (r *CachedQuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
