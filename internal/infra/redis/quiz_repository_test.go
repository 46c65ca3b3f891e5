package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	backing := &countingStore{QuizStore: memory.NewQuizStore(sampleQuiz())}
	repo := NewCachedQuizRepository(client, backing, time.Minute)

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if backing.calls != 1 {
		t.Fatalf("expected backing store called once, got %d", backing.calls)
	}
	if !mr.Exists("quiz:quiz-1") || !mr.Exists("quiz:two-plus") {
		t.Fatalf("expected id and slug keys to be cached")
	}
	if got := mr.HGet("quiz:two-plus", "token"); got != "owner" {
		t.Fatalf("expected owner token in hash, got %q", got)
	}

	// Second call by slug should hit cache, backing not incremented.
	cached, err := repo.GetQuiz(context.Background(), "two-plus")
	if err != nil {
		t.Fatalf("get quiz by slug: %v", err)
	}
	if backing.calls != 1 {
		t.Fatalf("expected cache hit, backing calls=%d", backing.calls)
	}
	if cached.OwnerToken != quiz.OwnerToken || len(cached.Questions) != 1 {
		t.Fatalf("cached quiz lost fields: %+v", cached)
	}
}

func TestQuizRepositoryDeleteEvicts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewCachedQuizRepository(newClient(mr), memory.NewQuizStore(sampleQuiz()), time.Minute)
	ctx := context.Background()
	quiz, err := repo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if err := repo.DeleteQuiz(ctx, quiz); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz:quiz-1") || mr.Exists("quiz:two-plus") {
		t.Fatalf("expected cache keys to be evicted")
	}
	if _, err := repo.GetQuiz(ctx, "two-plus"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingStore struct {
	*memory.QuizStore
	calls int
}

func (s *countingStore) GetQuiz(ctx context.Context, ref string) (domain.Quiz, error) {
	s.calls++
	return s.QuizStore.GetQuiz(ctx, ref)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Slug:  "two-plus",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4"}, Answer: "4"},
		},
		OwnerToken: "owner",
		CreatedAt:  time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
