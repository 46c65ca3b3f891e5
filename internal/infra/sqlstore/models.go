package sqlstore

import (
	"encoding/json"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/uptrace/bun"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID           string    `bun:"id,pk"`
	Slug         string    `bun:"slug,notnull"`
	Title        string    `bun:"title,notnull"`
	Data         string    `bun:"data,notnull"`
	TimerMinutes int       `bun:"timer_minutes,notnull"`
	OwnerToken   string    `bun:"owner_token,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func newQuizRow(q domain.Quiz) (quizRow, error) {
	data, err := json.Marshal(q.Questions)
	if err != nil {
		return quizRow{}, err
	}
	return quizRow{
		ID:           q.ID,
		Slug:         q.Slug,
		Title:        q.Title,
		Data:         string(data),
		TimerMinutes: q.TimerMinutes,
		OwnerToken:   q.OwnerToken,
		CreatedAt:    q.CreatedAt.UTC(),
	}, nil
}

func (r quizRow) toDomain() (domain.Quiz, error) {
	q := domain.Quiz{
		ID:           r.ID,
		Slug:         r.Slug,
		Title:        r.Title,
		TimerMinutes: r.TimerMinutes,
		OwnerToken:   r.OwnerToken,
		CreatedAt:    r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Data), &q.Questions); err != nil {
		return domain.Quiz{}, err
	}
	return q, nil
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts"`

	ID              string     `bun:"id,pk"`
	QuizID          string     `bun:"quiz_id,notnull"`
	ParticipantName string     `bun:"participant_name,notnull"`
	State           string     `bun:"state,notnull"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	FinishedAt      *time.Time `bun:"finished_at"`
	TimeTakenMS     *int64     `bun:"time_taken_ms"`
	Score           *int       `bun:"score"`
}

func newAttemptRow(a domain.Attempt) attemptRow {
	row := attemptRow{
		ID:              a.ID,
		QuizID:          a.QuizID,
		ParticipantName: a.ParticipantName,
		State:           string(a.State),
		CreatedAt:       a.CreatedAt.UTC(),
		Score:           a.Score,
	}
	if a.FinishedAt != nil {
		t := a.FinishedAt.UTC()
		row.FinishedAt = &t
	}
	if a.TimeTaken != nil {
		ms := a.TimeTaken.Milliseconds()
		row.TimeTakenMS = &ms
	}
	return row
}

func (r attemptRow) toDomain() domain.Attempt {
	a := domain.Attempt{
		ID:              r.ID,
		QuizID:          r.QuizID,
		ParticipantName: r.ParticipantName,
		State:           domain.AttemptState(r.State),
		CreatedAt:       r.CreatedAt,
		FinishedAt:      r.FinishedAt,
		Score:           r.Score,
	}
	if r.TimeTakenMS != nil {
		d := time.Duration(*r.TimeTakenMS) * time.Millisecond
		a.TimeTaken = &d
	}
	return a
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses"`

	Seq            int64     `bun:"seq,pk,autoincrement"`
	AttemptID      string    `bun:"attempt_id,notnull"`
	QuestionIdx    int       `bun:"question_idx,notnull"`
	SelectedOption string    `bun:"selected_option,notnull"`
	AcceptedAt     time.Time `bun:"accepted_at,notnull"`
	IsLocked       bool      `bun:"is_locked,notnull"`
}

func (r responseRow) toDomain() domain.Response {
	return domain.Response{
		Seq:            r.Seq,
		AttemptID:      r.AttemptID,
		QuestionIndex:  r.QuestionIdx,
		SelectedOption: r.SelectedOption,
		AcceptedAt:     r.AcceptedAt,
		Locked:         r.IsLocked,
	}
}
