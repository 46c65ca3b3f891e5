package domain

import (
	"strings"
	"time"
)

// NotAnswered is shown in reports for questions without an authoritative response.
const NotAnswered = "Not answered"

// AttemptState is the lifecycle state of an attempt.
type AttemptState string

const (
	AttemptInProgress AttemptState = "in_progress"
	AttemptFinished   AttemptState = "finished"
)

// Question is a single multiple-choice question embedded in a quiz definition.
type Question struct {
	Text        string   `json:"question" validate:"required"`
	Options     []string `json:"options" validate:"min=2,dive,required"`
	Answer      string   `json:"answer" validate:"required"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is immutable once published.
type Quiz struct {
	ID           string     `json:"id"`
	Slug         string     `json:"slug"`
	Title        string     `json:"title"`
	Questions    []Question `json:"questions"`
	TimerMinutes int        `json:"timerMinutes,omitempty"`
	OwnerToken   string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// TimeLimit returns zero when the quiz is untimed.
func (q Quiz) TimeLimit() time.Duration {
	if q.TimerMinutes <= 0 {
		return 0
	}
	return time.Duration(q.TimerMinutes) * time.Minute
}

// Matches reports whether ref names the quiz by id or slug.
func (q Quiz) Matches(ref string) bool {
	return ref != "" && (q.ID == ref || q.Slug == ref)
}

// PublicQuestion hides the answer and explanation from participants.
type PublicQuestion struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// PublicQuiz is what participants may see before finishing.
type PublicQuiz struct {
	ID           string           `json:"id"`
	Slug         string           `json:"slug"`
	Title        string           `json:"title"`
	Questions    []PublicQuestion `json:"questions"`
	TimerMinutes int              `json:"timerMinutes,omitempty"`
}

// Public strips answers and the owner token.
func (q Quiz) Public() PublicQuiz {
	questions := make([]PublicQuestion, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = PublicQuestion{Text: question.Text, Options: append([]string(nil), question.Options...)}
	}
	return PublicQuiz{
		ID:           q.ID,
		Slug:         q.Slug,
		Title:        q.Title,
		Questions:    questions,
		TimerMinutes: q.TimerMinutes,
	}
}

// QuizSummary is the organizer listing row.
type QuizSummary struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	OwnerToken    string    `json:"ownerToken"`
	TimerMinutes  int       `json:"timerMinutes,omitempty"`
	QuestionCount int       `json:"questionCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summary builds the organizer listing row for q.
func (q Quiz) Summary() QuizSummary {
	return QuizSummary{
		ID:            q.ID,
		Slug:          q.Slug,
		Title:         q.Title,
		OwnerToken:    q.OwnerToken,
		TimerMinutes:  q.TimerMinutes,
		QuestionCount: len(q.Questions),
		CreatedAt:     q.CreatedAt,
	}
}

// Attempt is one participant's single run through a quiz.
type Attempt struct {
	ID              string
	QuizID          string
	ParticipantName string
	CreatedAt       time.Time
	State           AttemptState
	FinishedAt      *time.Time
	TimeTaken       *time.Duration
	Score           *int
}

// Finished reports whether the attempt reached its terminal state.
func (a Attempt) Finished() bool {
	return a.State == AttemptFinished
}

// Completion is what finishing writes onto an attempt in a single step.
type Completion struct {
	Score      int
	FinishedAt time.Time
	TimeTaken  *time.Duration
}

// Apply returns a copy of a transitioned to Finished.
func (c Completion) Apply(a Attempt) Attempt {
	score := c.Score
	finishedAt := c.FinishedAt
	a.State = AttemptFinished
	a.Score = &score
	a.FinishedAt = &finishedAt
	if c.TimeTaken != nil {
		taken := *c.TimeTaken
		a.TimeTaken = &taken
	}
	return a
}

// Response is one ledger row. Seq is assigned by the store on insert.
type Response struct {
	Seq            int64
	AttemptID      string
	QuestionIndex  int
	SelectedOption string
	AcceptedAt     time.Time
	Locked         bool
}

// Progress is the derived position of a participant inside an attempt.
type Progress struct {
	AttemptID      string       `json:"attemptId"`
	State          AttemptState `json:"state"`
	TotalQuestions int          `json:"totalQuestions"`
	Answered       int          `json:"answered"`
	Current        int          `json:"current"`
	Locked         []bool       `json:"locked"`
}

// Done reports whether every question has been locked.
func (p Progress) Done() bool {
	return p.Current >= p.TotalQuestions
}

// QuestionReport is one row of the per-question breakdown.
type QuestionReport struct {
	Number        int      `json:"questionNumber"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	UserAnswer    string   `json:"userAnswer"`
	Answered      bool     `json:"answered"`
	IsCorrect     bool     `json:"isCorrect"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Report is the participant-facing result view.
type Report struct {
	AttemptID        string           `json:"attemptId"`
	ParticipantName  string           `json:"participantName"`
	QuizTitle        string           `json:"quizTitle"`
	Finished         bool             `json:"finished"`
	Score            *int             `json:"score"`
	TotalQuestions   int              `json:"totalQuestions"`
	Percentage       *int             `json:"percentage"`
	CompletedAt      *time.Time       `json:"completedAt"`
	TimeTakenSeconds *int64           `json:"timeTakenSeconds,omitempty"`
	Questions        []QuestionReport `json:"questions"`
}

// AttemptResult is one organizer-facing row.
type AttemptResult struct {
	AttemptID        string       `json:"attemptId"`
	ParticipantName  string       `json:"participantName"`
	State            AttemptState `json:"state"`
	Score            *int         `json:"score"`
	Percentage       *int         `json:"percentage"`
	CreatedAt        time.Time    `json:"createdAt"`
	FinishedAt       *time.Time   `json:"finishedAt"`
	TimeTakenSeconds *int64       `json:"timeTakenSeconds,omitempty"`
}

// Results is the organizer view of one quiz.
type Results struct {
	Quiz     QuizSummary     `json:"quiz"`
	Attempts []AttemptResult `json:"attempts"`
}

// Percentage rounds score/total to a whole percent.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (score*200 + total) / (total * 2)
}

// SameAnswer compares two options the way scoring does.
func SameAnswer(selected, answer string) bool {
	return strings.TrimSpace(selected) == strings.TrimSpace(answer)
}
