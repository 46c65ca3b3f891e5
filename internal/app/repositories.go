package app

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// QuizRepository loads and publishes quiz definitions (memory, SQL, or a cache in front of either).
type QuizRepository interface {
	// GetQuiz resolves a quiz by id or slug.
	GetQuiz(ctx context.Context, ref string) (domain.Quiz, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	// DeleteQuiz removes the quiz; attempts are removed by the attempt store.
	DeleteQuiz(ctx context.Context, quiz domain.Quiz) error
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// FinishFunc computes the completion of an in-progress attempt from its ledger.
// It runs inside the store's exclusive section for the attempt.
type FinishFunc func(attempt domain.Attempt, responses []domain.Response) (domain.Completion, error)

// AttemptRepository owns attempts and the response ledger.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error)
	DeleteAttempts(ctx context.Context, quizID string) error

	// AppendResponse persists a locked response. It returns domain.ErrAlreadyAnswered
	// when (attempt, question index) is already taken and domain.ErrAttemptFinished
	// when the attempt is terminal; in both cases nothing is written.
	AppendResponse(ctx context.Context, response domain.Response) (domain.Response, error)
	// ListResponses returns the raw ledger ordered by acceptance time, then sequence.
	ListResponses(ctx context.Context, attemptID string) ([]domain.Response, error)

	// FinishAttempt runs finish for an in-progress attempt and persists the result
	// atomically. For a finished attempt it returns the stored attempt, applied=false,
	// and never calls finish.
	FinishAttempt(ctx context.Context, attemptID string, finish FinishFunc) (attempt domain.Attempt, applied bool, err error)
}

// PlayRegistry guarantees at most one live play session per attempt.
type PlayRegistry interface {
	Claim(ctx context.Context, attemptID string, monitor *DeadlineMonitor) error
	Get(attemptID string) (*DeadlineMonitor, bool)
	Release(ctx context.Context, attemptID string)
}

// EventPublisher announces finished attempts.
type EventPublisher interface {
	PublishAttemptFinished(ctx context.Context, event AttemptFinishedEvent) error
}

// OrganizerGate verifies the organizer master password.
type OrganizerGate interface {
	CheckPassword(password string) error
}
