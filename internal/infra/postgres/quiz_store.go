package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"quiz-attempt-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizStore keeps quiz definitions in Postgres, questions as JSONB.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

const quizColumns = `id, slug, title, data, timer_minutes, owner_token, created_at`

func (s *QuizStore) GetQuiz(ctx context.Context, ref string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1 OR slug=$1 LIMIT 1`, ref)
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.StorageError("load quiz", err)
	}
	return quiz, nil
}

func (s *QuizStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz.Questions)
	if err != nil {
		return domain.StorageError("marshal quiz", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (`+quizColumns+`) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)`,
		quiz.ID, quiz.Slug, quiz.Title, string(data), quiz.TimerMinutes, quiz.OwnerToken, quiz.CreatedAt)
	if err != nil {
		return domain.StorageError("insert quiz", err)
	}
	return nil
}

// DeleteQuiz relies on ON DELETE CASCADE for attempts and responses.
func (s *QuizStore) DeleteQuiz(ctx context.Context, quiz domain.Quiz) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quiz.ID)
	if err != nil {
		return domain.StorageError("delete quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at DESC`)
	if err != nil {
		return nil, domain.StorageError("list quizzes", err)
	}
	defer rows.Close()

	var out []domain.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, domain.StorageError("scan quiz", err)
		}
		out = append(out, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list quizzes", err)
	}
	return out, nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz domain.Quiz
		raw  []byte
	)
	if err := row.Scan(&quiz.ID, &quiz.Slug, &quiz.Title, &raw, &quiz.TimerMinutes, &quiz.OwnerToken, &quiz.CreatedAt); err != nil {
		return domain.Quiz{}, err
	}
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}
