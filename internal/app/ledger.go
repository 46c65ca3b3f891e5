package app

import (
	"sort"

	"quiz-attempt-service/internal/domain"
)

// Ledger is the reconciled view of an attempt's responses: at most one
// authoritative response per question index.
type Ledger struct {
	total         int
	authoritative map[int]domain.Response
}

// Reconcile applies the first-accepted-wins rule. Responses are ordered by
// acceptance time, ties broken by store sequence; later duplicates for the same
// index and indexes outside the quiz are ignored. The input slice is not modified.
func Reconcile(responses []domain.Response, questionCount int) Ledger {
	ordered := append([]domain.Response(nil), responses...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].AcceptedAt.Equal(ordered[j].AcceptedAt) {
			return ordered[i].AcceptedAt.Before(ordered[j].AcceptedAt)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	ledger := Ledger{total: questionCount, authoritative: make(map[int]domain.Response, questionCount)}
	for _, r := range ordered {
		if r.QuestionIndex < 0 || r.QuestionIndex >= questionCount {
			continue
		}
		if _, taken := ledger.authoritative[r.QuestionIndex]; taken {
			continue
		}
		ledger.authoritative[r.QuestionIndex] = r
	}
	return ledger
}

// Authoritative returns the winning response for question index i.
func (l Ledger) Authoritative(i int) (domain.Response, bool) {
	r, ok := l.authoritative[i]
	return r, ok
}

// Answered is the number of locked questions.
func (l Ledger) Answered() int {
	return len(l.authoritative)
}

// Progress derives the question pointer and lock flags for attempt.
func (l Ledger) Progress(attempt domain.Attempt) domain.Progress {
	locked := make([]bool, l.total)
	current := l.total
	for i := 0; i < l.total; i++ {
		_, locked[i] = l.authoritative[i]
		if !locked[i] && current == l.total {
			current = i
		}
	}
	return domain.Progress{
		AttemptID:      attempt.ID,
		State:          attempt.State,
		TotalQuestions: l.total,
		Answered:       len(l.authoritative),
		Current:        current,
		Locked:         locked,
	}
}
