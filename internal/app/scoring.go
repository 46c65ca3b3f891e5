package app

import "quiz-attempt-service/internal/domain"

// Outcome is the scoring verdict for one question.
type Outcome struct {
	Index    int
	Answered bool
	Selected string
	Correct  bool
}

// Score grades quiz against a reconciled ledger. One point per correct answer,
// unanswered questions are incorrect, nothing is negative.
func Score(quiz domain.Quiz, ledger Ledger) (int, []Outcome) {
	score := 0
	outcomes := make([]Outcome, len(quiz.Questions))
	for i, q := range quiz.Questions {
		outcomes[i] = Outcome{Index: i}
		r, ok := ledger.Authoritative(i)
		if !ok {
			continue
		}
		outcomes[i].Answered = true
		outcomes[i].Selected = r.SelectedOption
		if domain.SameAnswer(r.SelectedOption, q.Answer) {
			outcomes[i].Correct = true
			score++
		}
	}
	return score, outcomes
}
