package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/uptrace/bun"
)

// AttemptStore keeps attempts and the response ledger in SQL. Postgres takes
// a shared row lock on the attempt to submit and an exclusive one to finish;
// SQLite gets the same ordering from immediate transactions on one connection.
type AttemptStore struct {
	db *bun.DB
	pg bool
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db, pg: isPostgres(db)}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := newAttemptRow(attempt)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.StorageError("insert attempt", err)
	}
	return nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, domain.StorageError("load attempt", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.StorageError("list attempts", err)
	}
	out := make([]domain.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *AttemptStore) DeleteAttempts(ctx context.Context, quizID string) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sub := tx.NewSelect().Model((*attemptRow)(nil)).Column("id").Where("quiz_id = ?", quizID)
		if _, err := tx.NewDelete().Model((*responseRow)(nil)).Where("attempt_id IN (?)", sub).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*attemptRow)(nil)).Where("quiz_id = ?", quizID).Exec(ctx)
		return err
	})
	if err != nil {
		return domain.StorageError("delete attempts", err)
	}
	return nil
}

// AppendResponse inserts one locked response. The (attempt_id, question_idx)
// unique constraint settles concurrent submissions for the same question.
func (s *AttemptStore) AppendResponse(ctx context.Context, response domain.Response) (domain.Response, error) {
	row := responseRow{
		AttemptID:      response.AttemptID,
		QuestionIdx:    response.QuestionIndex,
		SelectedOption: response.SelectedOption,
		AcceptedAt:     response.AcceptedAt.UTC(),
		IsLocked:       true,
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		attempt, err := s.lockAttempt(ctx, tx, response.AttemptID, "SHARE")
		if err != nil {
			return err
		}
		if attempt.State == string(domain.AttemptFinished) {
			return domain.ErrAttemptFinished
		}
		taken, err := tx.NewSelect().Model((*responseRow)(nil)).
			Where("attempt_id = ?", row.AttemptID).
			Where("question_idx = ?", row.QuestionIdx).
			Exists(ctx)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrAlreadyAnswered
		}
		_, err = tx.NewInsert().Model(&row).Exec(ctx)
		return err
	})
	switch {
	case err == nil:
		return row.toDomain(), nil
	case isUniqueViolation(err):
		return domain.Response{}, domain.ErrAlreadyAnswered
	case domain.Kind(err) != nil:
		return domain.Response{}, err
	default:
		return domain.Response{}, domain.StorageError("insert response", err)
	}
}

func (s *AttemptStore) ListResponses(ctx context.Context, attemptID string) ([]domain.Response, error) {
	out, err := listResponses(ctx, s.db, attemptID)
	if err != nil {
		return nil, domain.StorageError("list responses", err)
	}
	return out, nil
}

// FinishAttempt runs finish under an exclusive lock on the attempt and writes
// the completion in the same transaction. applied is false when the attempt
// was already finished.
func (s *AttemptStore) FinishAttempt(ctx context.Context, attemptID string, finish app.FinishFunc) (domain.Attempt, bool, error) {
	var (
		result  domain.Attempt
		applied bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := s.lockAttempt(ctx, tx, attemptID, "UPDATE")
		if err != nil {
			return err
		}
		attempt := row.toDomain()
		if attempt.Finished() {
			result = attempt
			return nil
		}
		responses, err := listResponses(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		completion, err := finish(attempt, responses)
		if err != nil {
			return err
		}
		attempt = completion.Apply(attempt)
		updated := newAttemptRow(attempt)
		_, err = tx.NewUpdate().Model(&updated).
			Column("state", "score", "finished_at", "time_taken_ms").
			WherePK().
			Where("state = ?", string(domain.AttemptInProgress)).
			Exec(ctx)
		if err != nil {
			return err
		}
		result, applied = attempt, true
		return nil
	})
	if err != nil {
		if domain.Kind(err) != nil {
			return domain.Attempt{}, false, err
		}
		return domain.Attempt{}, false, domain.StorageError("finish attempt", err)
	}
	return result, applied, nil
}

func (s *AttemptStore) lockAttempt(ctx context.Context, tx bun.Tx, attemptID, mode string) (attemptRow, error) {
	var row attemptRow
	q := tx.NewSelect().Model(&row).Where("id = ?", attemptID)
	if s.pg {
		q = q.For(mode)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return attemptRow{}, domain.ErrAttemptNotFound
	}
	return row, err
}

func listResponses(ctx context.Context, db bun.IDB, attemptID string) ([]domain.Response, error) {
	var rows []responseRow
	err := db.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("accepted_at ASC", "seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
