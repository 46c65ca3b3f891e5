package http

import (
	"net/http"
	"testing"

	"quiz-attempt-service/internal/domain"
)

func TestAttemptLifecycleOverREST(t *testing.T) {
	env := newTestEnv(t)
	published := env.publish(t, capitalsDefinition(0))
	if published.Slug == "" || published.OwnerToken == "" {
		t.Fatalf("expected slug and owner token, got %+v", published)
	}

	attemptID := env.startAttempt(t, published.Slug, "Ada")

	submit := func(idx int, option string) (int, errorBody) {
		var body errorBody
		status := env.do(t, http.MethodPost, "/api/attempts/"+attemptID+"/responses",
			map[string]any{"questionIdx": idx, "selectedOption": option}, &body)
		return status, body
	}

	if status, _ := submit(0, "  Paris "); status != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d", status)
	}
	status, body := submit(0, "Rome")
	if status != http.StatusBadRequest || body.Code != "already_answered" {
		t.Fatalf("duplicate submit: expected 400 already_answered, got %d %+v", status, body)
	}
	if status, body := submit(5, "Rome"); status != http.StatusBadRequest || body.Code != "invalid_input" {
		t.Fatalf("out of range: expected 400 invalid_input, got %d %+v", status, body)
	}

	var progress domain.Progress
	if status := env.do(t, http.MethodGet, "/api/attempts/"+attemptID+"/progress", nil, &progress); status != http.StatusOK {
		t.Fatalf("progress: expected 200, got %d", status)
	}
	if progress.Current != 1 || progress.Answered != 1 {
		t.Fatalf("expected pointer at question 1 with 1 answered, got %+v", progress)
	}

	var finished struct {
		Success bool `json:"success"`
		Score   int  `json:"score"`
	}
	if status := env.do(t, http.MethodPost, "/api/attempts/"+attemptID+"/finish", map[string]any{"timeTakenSeconds": 42}, &finished); status != http.StatusOK {
		t.Fatalf("finish: expected 200, got %d", status)
	}
	if !finished.Success || finished.Score != 1 {
		t.Fatalf("expected score 1, got %+v", finished)
	}

	// finishing again returns the stored result
	if status := env.do(t, http.MethodPost, "/api/attempts/"+attemptID+"/finish", nil, &finished); status != http.StatusOK || finished.Score != 1 {
		t.Fatalf("second finish: expected 200 with score 1, got %d %+v", status, finished)
	}
	if status, body := submit(1, "Rome"); status != http.StatusBadRequest || body.Code != "invalid_input" {
		t.Fatalf("submit after finish: expected 400, got %d %+v", status, body)
	}

	var report domain.Report
	if status := env.do(t, http.MethodGet, "/api/attempts/"+attemptID+"/report", nil, &report); status != http.StatusOK {
		t.Fatalf("report: expected 200, got %d", status)
	}
	if report.Score == nil || *report.Score != 1 || report.TotalQuestions != 2 {
		t.Fatalf("unexpected report summary: %+v", report)
	}
	if report.Percentage == nil || *report.Percentage != 50 {
		t.Fatalf("expected 50 percent, got %v", report.Percentage)
	}
	if !report.Questions[0].IsCorrect || report.Questions[0].UserAnswer != "  Paris " {
		t.Fatalf("unexpected first question: %+v", report.Questions[0])
	}
	if report.Questions[1].UserAnswer != domain.NotAnswered || report.Questions[1].IsCorrect {
		t.Fatalf("expected second question unanswered, got %+v", report.Questions[1])
	}
	if report.TimeTakenSeconds == nil || *report.TimeTakenSeconds != 42 {
		t.Fatalf("expected 42s time taken, got %v", report.TimeTakenSeconds)
	}
}

func TestReportWithholdsAnswersUntilFinished(t *testing.T) {
	env := newTestEnv(t)
	published := env.publish(t, capitalsDefinition(0))
	attemptID := env.startAttempt(t, published.ID, "Ada")

	if status := env.do(t, http.MethodPost, "/api/attempts/"+attemptID+"/responses",
		map[string]any{"questionIdx": 0, "selectedOption": "Rome"}, nil); status != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d", status)
	}

	var raw struct {
		Finished  bool             `json:"finished"`
		Questions []map[string]any `json:"questions"`
	}
	if status := env.do(t, http.MethodGet, "/api/attempts/"+attemptID+"/report", nil, &raw); status != http.StatusOK {
		t.Fatalf("report: expected 200, got %d", status)
	}
	if raw.Finished || len(raw.Questions) != 2 {
		t.Fatalf("unexpected in-progress report: %+v", raw)
	}
	for _, q := range raw.Questions {
		if _, ok := q["correctAnswer"]; ok {
			t.Fatalf("correct answer exposed before finish: %+v", q)
		}
		if _, ok := q["explanation"]; ok {
			t.Fatalf("explanation exposed before finish: %+v", q)
		}
		if q["isCorrect"] != false {
			t.Fatalf("correctness exposed before finish: %+v", q)
		}
	}
	if raw.Questions[0]["userAnswer"] != "Rome" {
		t.Fatalf("expected own answer to be shown, got %+v", raw.Questions[0])
	}

	if status := env.do(t, http.MethodPost, "/api/attempts/"+attemptID+"/finish", nil, nil); status != http.StatusOK {
		t.Fatalf("finish: expected 200, got %d", status)
	}
	var report domain.Report
	if status := env.do(t, http.MethodGet, "/api/attempts/"+attemptID+"/report", nil, &report); status != http.StatusOK {
		t.Fatalf("report after finish: expected 200, got %d", status)
	}
	first := report.Questions[0]
	if first.CorrectAnswer != "Paris" || first.IsCorrect || first.Explanation == "" {
		t.Fatalf("expected answers revealed after finish, got %+v", first)
	}
}

func TestResultsRequireOwnerToken(t *testing.T) {
	env := newTestEnv(t)
	published := env.publish(t, capitalsDefinition(0))
	env.startAttempt(t, published.ID, "Ada")

	var body errorBody
	if status := env.do(t, http.MethodGet, "/api/quizzes/"+published.Slug+"/results", nil, &body); status != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", status)
	}
	if status := env.do(t, http.MethodGet, "/api/quizzes/"+published.Slug+"/results?token=nope", nil, &body); status != http.StatusForbidden {
		t.Fatalf("bad token: expected 403, got %d", status)
	}

	var results domain.Results
	if status := env.do(t, http.MethodGet, "/api/quizzes/"+published.Slug+"/results?token="+published.OwnerToken, nil, &results); status != http.StatusOK {
		t.Fatalf("results: expected 200, got %d", status)
	}
	if len(results.Attempts) != 1 || results.Attempts[0].ParticipantName != "Ada" {
		t.Fatalf("unexpected results: %+v", results)
	}

	resp, err := http.Get(env.server.URL + "/api/quizzes/" + published.Slug + "/results.xlsx?token=" + published.OwnerToken)
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("xlsx: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	env := newTestEnv(t)
	def := capitalsDefinition(0)
	def.Questions[1].Answer = "Madrid"

	var body errorBody
	if status := env.do(t, http.MethodPost, "/api/quizzes", def, &body); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.Code != "invalid_input" {
		t.Fatalf("expected invalid_input, got %+v", body)
	}

	overflow := capitalsDefinition(1 << 40)
	if status := env.do(t, http.MethodPost, "/api/quizzes", overflow, &body); status != http.StatusBadRequest || body.Code != "invalid_input" {
		t.Fatalf("huge time limit: expected 400 invalid_input, got %d %+v", status, body)
	}
}

func TestOrganizerOperations(t *testing.T) {
	env := newTestEnv(t)
	published := env.publish(t, capitalsDefinition(0))

	var body errorBody
	if status := env.do(t, http.MethodPost, "/api/organizer/quizzes", map[string]string{"password": "wrong"}, &body); status != http.StatusUnauthorized {
		t.Fatalf("list with wrong password: expected 401, got %d", status)
	}

	var listed struct {
		Quizzes []domain.QuizSummary `json:"quizzes"`
	}
	if status := env.do(t, http.MethodPost, "/api/organizer/quizzes", map[string]string{"password": testOrganizerPassword}, &listed); status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	if len(listed.Quizzes) != 1 || listed.Quizzes[0].QuestionCount != 2 {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	if status := env.do(t, http.MethodDelete, "/api/quizzes/"+published.Slug, map[string]string{"password": testOrganizerPassword}, nil); status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}
	if status := env.do(t, http.MethodGet, "/api/quizzes/"+published.Slug, nil, &body); status != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", status)
	}
}

func TestUnknownAttemptIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	var body errorBody
	if status := env.do(t, http.MethodGet, "/api/attempts/missing/report", nil, &body); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if body.Code != "not_found" {
		t.Fatalf("expected not_found, got %+v", body)
	}
}
