package app

import (
	"sort"

	"quiz-attempt-service/internal/domain"
)

// BuildReport renders the participant view. The summary score is the one
// persisted at finish; the per-question rows are re-derived from the ledger
// with the same reconciliation and comparison rules used at finish. Until the
// attempt is finished, correct answers, correctness and explanations are
// withheld.
func BuildReport(quiz domain.Quiz, attempt domain.Attempt, ledger Ledger) domain.Report {
	_, outcomes := Score(quiz, ledger)
	reveal := attempt.Finished()

	rows := make([]domain.QuestionReport, len(quiz.Questions))
	for i, q := range quiz.Questions {
		o := outcomes[i]
		answer := domain.NotAnswered
		if o.Answered {
			answer = o.Selected
		}
		rows[i] = domain.QuestionReport{
			Number:        i + 1,
			Question:      q.Text,
			Options:       append([]string(nil), q.Options...),
			CorrectAnswer: q.Answer,
			UserAnswer:    answer,
			Answered:      o.Answered,
			IsCorrect:     o.Correct,
			Explanation:   q.Explanation,
		}
		if !reveal {
			rows[i].CorrectAnswer = ""
			rows[i].IsCorrect = false
			rows[i].Explanation = ""
		}
	}

	report := domain.Report{
		AttemptID:        attempt.ID,
		ParticipantName:  attempt.ParticipantName,
		QuizTitle:        quiz.Title,
		Finished:         attempt.Finished(),
		TotalQuestions:   len(quiz.Questions),
		CompletedAt:      attempt.FinishedAt,
		TimeTakenSeconds: seconds(attempt),
		Questions:        rows,
	}
	if attempt.Finished() && attempt.Score != nil {
		score := *attempt.Score
		pct := domain.Percentage(score, len(quiz.Questions))
		report.Score = &score
		report.Percentage = &pct
	}
	return report
}

// BuildResults renders the organizer view: most recently finished first,
// unfinished attempts last in creation order.
func BuildResults(quiz domain.Quiz, attempts []domain.Attempt) domain.Results {
	rows := make([]domain.AttemptResult, 0, len(attempts))
	for _, a := range attempts {
		row := domain.AttemptResult{
			AttemptID:        a.ID,
			ParticipantName:  a.ParticipantName,
			State:            a.State,
			CreatedAt:        a.CreatedAt,
			FinishedAt:       a.FinishedAt,
			TimeTakenSeconds: seconds(a),
		}
		if a.Finished() && a.Score != nil {
			score := *a.Score
			pct := domain.Percentage(score, len(quiz.Questions))
			row.Score = &score
			row.Percentage = &pct
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		fi, fj := rows[i].FinishedAt, rows[j].FinishedAt
		switch {
		case fi != nil && fj != nil:
			return fi.After(*fj)
		case fi != nil:
			return true
		case fj != nil:
			return false
		default:
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
	})
	return domain.Results{Quiz: quiz.Summary(), Attempts: rows}
}

func seconds(a domain.Attempt) *int64 {
	if a.TimeTaken == nil {
		return nil
	}
	s := int64(a.TimeTaken.Seconds())
	return &s
}
