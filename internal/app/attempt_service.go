package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
)

// CreateAttempt registers a participant for a quiz.
func (s *QuizService) CreateAttempt(ctx context.Context, quizRef, participantName string) (domain.Attempt, error) {
	name := strings.TrimSpace(participantName)
	if name == "" {
		return domain.Attempt{}, domain.InvalidInputf("participant name is required")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizRef)
	if err != nil {
		return domain.Attempt{}, err
	}

	attempt := domain.Attempt{
		ID:              s.newID(),
		QuizID:          quiz.ID,
		ParticipantName: name,
		CreatedAt:       s.now().UTC(),
		State:           domain.AttemptInProgress,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	s.logger.InfoContext(ctx, "attempt created", "attempt_id", attempt.ID, "quiz_id", quiz.ID)
	return attempt, nil
}

// SubmitResponse locks the answer for one question. A second submission for the
// same question fails with domain.ErrAlreadyAnswered and writes nothing.
func (s *QuizService) SubmitResponse(ctx context.Context, attemptID string, questionIdx int, selectedOption string) (domain.Response, error) {
	if strings.TrimSpace(selectedOption) == "" {
		return domain.Response{}, domain.InvalidInputf("selected option is required")
	}
	attempt, quiz, err := s.load(ctx, attemptID)
	if err != nil {
		return domain.Response{}, err
	}
	if attempt.Finished() {
		return domain.Response{}, domain.ErrAttemptFinished
	}
	if questionIdx < 0 || questionIdx >= len(quiz.Questions) {
		return domain.Response{}, domain.InvalidInputf("question index %d out of range [0, %d)", questionIdx, len(quiz.Questions))
	}

	saved, err := s.attempts.AppendResponse(ctx, domain.Response{
		AttemptID:      attemptID,
		QuestionIndex:  questionIdx,
		SelectedOption: selectedOption,
		AcceptedAt:     s.now().UTC(),
		Locked:         true,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			s.logger.InfoContext(ctx, "duplicate response rejected", "attempt_id", attemptID, "question_idx", questionIdx)
		}
		return domain.Response{}, err
	}
	return saved, nil
}

// FinishAttempt scores and closes an attempt. Finishing a finished attempt
// returns the stored result unchanged.
func (s *QuizService) FinishAttempt(ctx context.Context, attemptID string, timeTaken *time.Duration) (domain.Attempt, error) {
	if timeTaken != nil && *timeTaken < 0 {
		return domain.Attempt{}, domain.InvalidInputf("time taken must not be negative")
	}
	attempt, quiz, err := s.load(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Finished() {
		return attempt, nil
	}

	finished, applied, err := s.attempts.FinishAttempt(ctx, attemptID, func(current domain.Attempt, responses []domain.Response) (domain.Completion, error) {
		score, _ := Score(quiz, Reconcile(responses, len(quiz.Questions)))
		return domain.Completion{Score: score, FinishedAt: s.now().UTC(), TimeTaken: timeTaken}, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	if !applied {
		return finished, nil
	}

	s.logger.InfoContext(ctx, "attempt finished",
		"attempt_id", attemptID,
		"quiz_id", quiz.ID,
		"score", *finished.Score,
		"total", len(quiz.Questions))
	s.publishFinished(ctx, quiz, finished)
	return finished, nil
}

// Progress reports the derived question pointer and lock flags.
func (s *QuizService) Progress(ctx context.Context, attemptID string) (domain.Progress, error) {
	attempt, quiz, err := s.load(ctx, attemptID)
	if err != nil {
		return domain.Progress{}, err
	}
	responses, err := s.attempts.ListResponses(ctx, attemptID)
	if err != nil {
		return domain.Progress{}, err
	}
	return Reconcile(responses, len(quiz.Questions)).Progress(attempt), nil
}

// Report rebuilds the participant view from persisted state. It has no side effects.
func (s *QuizService) Report(ctx context.Context, attemptID string) (domain.Report, error) {
	attempt, quiz, err := s.load(ctx, attemptID)
	if err != nil {
		return domain.Report{}, err
	}
	responses, err := s.attempts.ListResponses(ctx, attemptID)
	if err != nil {
		return domain.Report{}, err
	}
	return BuildReport(quiz, attempt, Reconcile(responses, len(quiz.Questions))), nil
}

// PlayContext is what a play session needs to present questions.
type PlayContext struct {
	Attempt  domain.Attempt
	Quiz     domain.Quiz
	Progress domain.Progress
}

// Play loads everything a play session needs for attemptID.
func (s *QuizService) Play(ctx context.Context, attemptID string) (PlayContext, error) {
	attempt, quiz, err := s.load(ctx, attemptID)
	if err != nil {
		return PlayContext{}, err
	}
	responses, err := s.attempts.ListResponses(ctx, attemptID)
	if err != nil {
		return PlayContext{}, err
	}
	return PlayContext{
		Attempt:  attempt,
		Quiz:     quiz,
		Progress: Reconcile(responses, len(quiz.Questions)).Progress(attempt),
	}, nil
}

// NewMonitor builds the deadline monitor for a play session on attemptID.
func (s *QuizService) NewMonitor(pc PlayContext, opts ...MonitorOption) *DeadlineMonitor {
	return NewDeadlineMonitor(pc.Attempt.ID, pc.Quiz.TimeLimit(), func(ctx context.Context, timeTaken time.Duration) (domain.Attempt, error) {
		return s.FinishAttempt(ctx, pc.Attempt.ID, &timeTaken)
	}, opts...)
}

func (s *QuizService) load(ctx context.Context, attemptID string) (domain.Attempt, domain.Quiz, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}
	return attempt, quiz, nil
}

func (s *QuizService) publishFinished(ctx context.Context, quiz domain.Quiz, attempt domain.Attempt) {
	if s.events == nil {
		return
	}
	event := AttemptFinishedEvent{
		AttemptID:       attempt.ID,
		QuizID:          quiz.ID,
		ParticipantName: attempt.ParticipantName,
		Score:           *attempt.Score,
		TotalQuestions:  len(quiz.Questions),
		FinishedAt:      *attempt.FinishedAt,
	}
	if err := s.events.PublishAttemptFinished(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish attempt finished failed", "attempt_id", attempt.ID, "error", err)
	}
}
