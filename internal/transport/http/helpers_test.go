package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

const testOrganizerPassword = "organizer-secret"

type fixedGate string

func (g fixedGate) CheckPassword(password string) error {
	if password != string(g) {
		return domain.ErrInvalidPassword
	}
	return nil
}

type testEnv struct {
	server   *httptest.Server
	service  *app.QuizService
	quizzes  *memory.QuizStore
	registry *memory.PlayRegistry
}

func newTestEnv(t *testing.T, wsOpts ...WSOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	quizzes := memory.NewQuizStore()
	attempts := memory.NewAttemptStore()
	registry := memory.NewPlayRegistry()
	service := app.NewQuizService(
		memory.NewCachedQuizRepository(quizzes, time.Minute),
		attempts,
		app.WithLogger(logger),
		app.WithOrganizerGate(fixedGate(testOrganizerPassword)),
	)
	router := NewRouter(
		NewHandler(service, registry, logger),
		NewWSHandler(service, registry, logger, wsOpts...),
		logger,
		RouterConfig{},
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, service: service, quizzes: quizzes, registry: registry}
}

func capitalsDefinition(timerMinutes int) domain.Definition {
	return domain.Definition{
		Title: "Capitals",
		Questions: []domain.Question{
			{Text: "Capital of France?", Options: []string{"Paris", "Rome", "Berlin"}, Answer: "Paris", Explanation: "Paris has been the capital since 987."},
			{Text: "Capital of Italy?", Options: []string{"Paris", "Rome", "Berlin"}, Answer: "Rome"},
		},
		TimerMinutes: timerMinutes,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) publish(t *testing.T, def domain.Definition) app.PublishedQuiz {
	t.Helper()
	var published app.PublishedQuiz
	if status := e.do(t, http.MethodPost, "/api/quizzes", def, &published); status != http.StatusCreated {
		t.Fatalf("create quiz: expected 201, got %d", status)
	}
	return published
}

func (e *testEnv) startAttempt(t *testing.T, ref, name string) string {
	t.Helper()
	var created struct {
		AttemptID string `json:"attemptId"`
	}
	body := map[string]string{"participantName": name}
	if status := e.do(t, http.MethodPost, "/api/quizzes/"+ref+"/attempts", body, &created); status != http.StatusCreated {
		t.Fatalf("create attempt: expected 201, got %d", status)
	}
	return created.AttemptID
}
