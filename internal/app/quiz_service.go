package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/google/uuid"
)

const defaultTitle = "Untitled Quiz"

// AttemptFinishedEvent is published once per attempt, by the finish that applied.
type AttemptFinishedEvent struct {
	AttemptID       string    `json:"attemptId"`
	QuizID          string    `json:"quizId"`
	ParticipantName string    `json:"participantName"`
	Score           int       `json:"score"`
	TotalQuestions  int       `json:"totalQuestions"`
	FinishedAt      time.Time `json:"finishedAt"`
}

// QuizService contains the quiz and attempt use cases.
type QuizService struct {
	quizzes   QuizRepository
	attempts  AttemptRepository
	events    EventPublisher
	organizer OrganizerGate
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *QuizService) { s.logger = logger }
}

// WithEvents publishes attempt.finished through p.
func WithEvents(p EventPublisher) Option {
	return func(s *QuizService) { s.events = p }
}

// WithOrganizerGate enables the password-protected organizer operations.
func WithOrganizerGate(g OrganizerGate) Option {
	return func(s *QuizService) { s.organizer = g }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func NewQuizService(quizzes QuizRepository, attempts AttemptRepository, opts ...Option) *QuizService {
	s := &QuizService{
		quizzes:  quizzes,
		attempts: attempts,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishedQuiz is returned to the organizer after creating a quiz.
type PublishedQuiz struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	OwnerToken string `json:"ownerToken"`
}

// CreateQuiz validates and publishes a quiz definition.
func (s *QuizService) CreateQuiz(ctx context.Context, def domain.Definition) (PublishedQuiz, error) {
	if err := domain.ValidateDefinition(def); err != nil {
		return PublishedQuiz{}, err
	}
	title := strings.TrimSpace(def.Title)
	if title == "" {
		title = defaultTitle
	}
	quiz := domain.Quiz{
		ID:           s.newID(),
		Slug:         newSlug(),
		Title:        title,
		Questions:    append([]domain.Question(nil), def.Questions...),
		TimerMinutes: def.TimerMinutes,
		OwnerToken:   newToken(),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.quizzes.CreateQuiz(ctx, quiz); err != nil {
		return PublishedQuiz{}, err
	}
	s.logger.InfoContext(ctx, "quiz published", "quiz_id", quiz.ID, "slug", quiz.Slug, "questions", len(quiz.Questions))
	return PublishedQuiz{ID: quiz.ID, Slug: quiz.Slug, OwnerToken: quiz.OwnerToken}, nil
}

// GetQuiz returns the participant-safe view of a quiz.
func (s *QuizService) GetQuiz(ctx context.Context, ref string) (domain.PublicQuiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, ref)
	if err != nil {
		return domain.PublicQuiz{}, err
	}
	return quiz.Public(), nil
}

// DeleteQuiz removes a quiz and, by cascade, its attempts and responses.
func (s *QuizService) DeleteQuiz(ctx context.Context, ref, password string) error {
	if err := s.checkPassword(password); err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.attempts.DeleteAttempts(ctx, quiz.ID); err != nil {
		return err
	}
	if err := s.quizzes.DeleteQuiz(ctx, quiz); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "quiz deleted", "quiz_id", quiz.ID, "slug", quiz.Slug)
	return nil
}

// ListQuizzes is the organizer listing, newest first.
func (s *QuizService) ListQuizzes(ctx context.Context, password string) ([]domain.QuizSummary, error) {
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}
	quizzes, err := s.quizzes.ListQuizzes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, q.Summary())
	}
	return out, nil
}

// Results is the organizer view of a quiz, gated by its capability token.
// Failures never reveal quiz content.
func (s *QuizService) Results(ctx context.Context, ref, token string) (domain.Results, error) {
	if token == "" {
		return domain.Results{}, domain.ErrTokenRequired
	}
	quiz, err := s.quizzes.GetQuiz(ctx, ref)
	if err != nil {
		return domain.Results{}, err
	}
	if subtle.ConstantTimeCompare([]byte(quiz.OwnerToken), []byte(token)) != 1 {
		return domain.Results{}, domain.ErrInvalidToken
	}
	attempts, err := s.attempts.ListAttempts(ctx, quiz.ID)
	if err != nil {
		return domain.Results{}, err
	}
	return BuildResults(quiz, attempts), nil
}

func (s *QuizService) checkPassword(password string) error {
	if s.organizer == nil {
		return domain.ErrInvalidPassword
	}
	if err := s.organizer.CheckPassword(password); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return err
		}
		return domain.ErrInvalidPassword
	}
	return nil
}

func newSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}
