package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"quiz-attempt-service/internal/domain"

	"github.com/uptrace/bun"
)

// QuizStore keeps quiz definitions in SQL with the questions as a JSON column.
type QuizStore struct {
	db *bun.DB
}

func NewQuizStore(db *bun.DB) *QuizStore {
	return &QuizStore{db: db}
}

func (s *QuizStore) GetQuiz(ctx context.Context, ref string) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewSelect().Model(&row).
		WhereOr("id = ?", ref).
		WhereOr("slug = ?", ref).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.StorageError("load quiz", err)
	}
	quiz, err := row.toDomain()
	if err != nil {
		return domain.Quiz{}, domain.StorageError("decode quiz", err)
	}
	return quiz, nil
}

func (s *QuizStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	row, err := newQuizRow(quiz)
	if err != nil {
		return domain.StorageError("marshal quiz", err)
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.StorageError("insert quiz", err)
	}
	return nil
}

func (s *QuizStore) DeleteQuiz(ctx context.Context, quiz domain.Quiz) error {
	res, err := s.db.NewDelete().Model((*quizRow)(nil)).Where("id = ?", quiz.ID).Exec(ctx)
	if err != nil {
		return domain.StorageError("delete quiz", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	var rows []quizRow
	if err := s.db.NewSelect().Model(&rows).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, domain.StorageError("list quizzes", err)
	}
	out := make([]domain.Quiz, 0, len(rows))
	for _, r := range rows {
		quiz, err := r.toDomain()
		if err != nil {
			return nil, domain.StorageError("decode quiz", err)
		}
		out = append(out, quiz)
	}
	return out, nil
}
