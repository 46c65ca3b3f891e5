package app

import (
	"math/rand"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func capitalsQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []domain.Question{
			{Text: "France?", Options: []string{"Paris", "Berlin"}, Answer: "Paris"},
			{Text: "Germany?", Options: []string{"Paris", "Berlin"}, Answer: "Berlin"},
			{Text: "Italy?", Options: []string{"Rome", "Milan"}, Answer: "Rome"},
		},
	}
}

func resp(seq int64, idx int, option string, at time.Duration) domain.Response {
	return domain.Response{Seq: seq, AttemptID: "a1", QuestionIndex: idx, SelectedOption: option, AcceptedAt: t0.Add(at), Locked: true}
}

func TestReconcileFirstAcceptedWins(t *testing.T) {
	// a store without a uniqueness constraint can hand back duplicates
	responses := []domain.Response{
		resp(3, 0, "Berlin", 2*time.Second),
		resp(1, 0, "Paris", time.Second),
		resp(2, 1, "Berlin", time.Second),
	}
	ledger := Reconcile(responses, 3)

	r, ok := ledger.Authoritative(0)
	require.True(t, ok)
	assert.Equal(t, "Paris", r.SelectedOption)
	assert.Equal(t, 2, ledger.Answered())
	_, ok = ledger.Authoritative(2)
	assert.False(t, ok)

	// input untouched
	assert.Equal(t, int64(3), responses[0].Seq)
}

func TestReconcileTieBreaksOnSequence(t *testing.T) {
	ledger := Reconcile([]domain.Response{
		resp(9, 0, "Berlin", 0),
		resp(4, 0, "Paris", 0),
	}, 1)
	r, _ := ledger.Authoritative(0)
	assert.Equal(t, "Paris", r.SelectedOption)
}

func TestReconcileIgnoresOutOfRange(t *testing.T) {
	ledger := Reconcile([]domain.Response{
		resp(1, -1, "Paris", 0),
		resp(2, 3, "Paris", 0),
	}, 3)
	assert.Equal(t, 0, ledger.Answered())
}

func TestScoreIsOrderIndependent(t *testing.T) {
	quiz := capitalsQuiz()
	responses := []domain.Response{
		resp(1, 0, "Paris", 0),
		resp(2, 0, "Berlin", time.Second),
		resp(3, 1, "Paris", 2*time.Second),
		resp(4, 2, " Rome ", 3*time.Second),
		resp(5, 2, "Milan", 3*time.Second),
	}
	want, _ := Score(quiz, Reconcile(responses, len(quiz.Questions)))
	require.Equal(t, 2, want)

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := append([]domain.Response(nil), responses...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, outcomes := Score(quiz, Reconcile(shuffled, len(quiz.Questions)))
		assert.Equal(t, want, got)
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, len(quiz.Questions))
		assert.Len(t, outcomes, len(quiz.Questions))
	}
}

func TestScoreComparison(t *testing.T) {
	quiz := capitalsQuiz()
	cases := []struct {
		selected string
		correct  bool
	}{
		{"Paris", true},
		{" Paris ", true},
		{"\tParis\n", true},
		{"paris", false},
		{"PARIS", false},
		{"Berlin", false},
	}
	for _, tc := range cases {
		score, outcomes := Score(quiz, Reconcile([]domain.Response{resp(1, 0, tc.selected, 0)}, 3))
		assert.Equal(t, tc.correct, outcomes[0].Correct, "selected %q", tc.selected)
		if tc.correct {
			assert.Equal(t, 1, score)
		} else {
			assert.Equal(t, 0, score)
		}
	}
}

func TestProgressPointsAtFirstUnlocked(t *testing.T) {
	attempt := domain.Attempt{ID: "a1", State: domain.AttemptInProgress}
	ledger := Reconcile([]domain.Response{resp(1, 0, "Paris", 0), resp(2, 2, "Rome", 0)}, 3)
	p := ledger.Progress(attempt)
	assert.Equal(t, 1, p.Current)
	assert.Equal(t, []bool{true, false, true}, p.Locked)
	assert.False(t, p.Done())

	full := Reconcile([]domain.Response{resp(1, 0, "Paris", 0), resp(2, 1, "Berlin", 0), resp(3, 2, "Rome", 0)}, 3)
	assert.True(t, full.Progress(attempt).Done())
}

func TestReportUsesPersistedScore(t *testing.T) {
	quiz := capitalsQuiz()
	finishedAt := t0.Add(time.Minute)
	taken := 75 * time.Second
	score := 1
	attempt := domain.Attempt{
		ID: "a1", ParticipantName: "Ada", State: domain.AttemptFinished,
		Score: &score, FinishedAt: &finishedAt, TimeTaken: &taken,
	}
	ledger := Reconcile([]domain.Response{resp(1, 0, "Paris", 0)}, 3)

	report := BuildReport(quiz, attempt, ledger)
	require.NotNil(t, report.Score)
	assert.Equal(t, 1, *report.Score)
	assert.Equal(t, 33, *report.Percentage)
	assert.Equal(t, int64(75), *report.TimeTakenSeconds)
	assert.Equal(t, domain.NotAnswered, report.Questions[1].UserAnswer)
	assert.Equal(t, 2, report.Questions[1].Number)

	unfinished := BuildReport(quiz, domain.Attempt{ID: "a2", State: domain.AttemptInProgress}, ledger)
	assert.Nil(t, unfinished.Score)
	assert.Nil(t, unfinished.Percentage)
	assert.Equal(t, "Paris", unfinished.Questions[0].UserAnswer)
	for _, q := range unfinished.Questions {
		assert.Empty(t, q.CorrectAnswer)
		assert.False(t, q.IsCorrect)
		assert.Empty(t, q.Explanation)
	}
	assert.Equal(t, "Paris", report.Questions[0].CorrectAnswer)
	assert.True(t, report.Questions[0].IsCorrect)
}

func TestPercentageRounds(t *testing.T) {
	assert.Equal(t, 67, domain.Percentage(2, 3))
	assert.Equal(t, 50, domain.Percentage(1, 2))
	assert.Equal(t, 0, domain.Percentage(0, 0))
}

func TestBuildResultsOrdering(t *testing.T) {
	quiz := capitalsQuiz()
	early, late := t0.Add(time.Minute), t0.Add(2*time.Minute)
	one, two := 1, 2
	results := BuildResults(quiz, []domain.Attempt{
		{ID: "open", State: domain.AttemptInProgress, CreatedAt: t0},
		{ID: "early", State: domain.AttemptFinished, FinishedAt: &early, Score: &one, CreatedAt: t0},
		{ID: "late", State: domain.AttemptFinished, FinishedAt: &late, Score: &two, CreatedAt: t0},
	})
	ids := []string{}
	for _, r := range results.Attempts {
		ids = append(ids, r.AttemptID)
	}
	assert.Equal(t, []string{"late", "early", "open"}, ids)
	assert.Equal(t, 67, *results.Attempts[0].Percentage)
	assert.Equal(t, 3, results.Quiz.QuestionCount)
}
