package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/export"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// Handler serves the REST API.
type Handler struct {
	service  *app.QuizService
	registry app.PlayRegistry
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *app.QuizService, registry app.PlayRegistry, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type createAttemptRequest struct {
	ParticipantName string `json:"participantName" validate:"required"`
}

type submitResponseRequest struct {
	QuestionIdx    *int   `json:"questionIdx" validate:"required,gte=0"`
	SelectedOption string `json:"selectedOption" validate:"required"`
}

type finishRequest struct {
	TimeTakenSeconds *float64 `json:"timeTakenSeconds" validate:"omitempty,gte=0"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var def domain.Definition
	if err := decodeJSON(r, &def, false); err != nil {
		respondError(w, err)
		return
	}
	published, err := h.service.CreateQuiz(r.Context(), def)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, published)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.GetQuiz(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quiz)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	password, err := organizerPassword(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.service.DeleteQuiz(r.Context(), chi.URLParam(r, "ref"), password); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	password, err := organizerPassword(r)
	if err != nil {
		respondError(w, err)
		return
	}
	quizzes, err := h.service.ListQuizzes(r.Context(), password)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

func (h *Handler) CreateAttempt(w http.ResponseWriter, r *http.Request) {
	var req createAttemptRequest
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}
	attempt, err := h.service.CreateAttempt(r.Context(), chi.URLParam(r, "ref"), req.ParticipantName)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"attemptId": attempt.ID})
}

// SubmitResponse goes through the live play session when there is one, so a
// REST submission racing the deadline is drained like a websocket one.
func (h *Handler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	var req submitResponseRequest
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if monitor, ok := h.registry.Get(attemptID); ok {
		done, ok := monitor.Track()
		if !ok {
			respondError(w, domain.ErrAttemptFinished)
			return
		}
		defer done()
	}
	if _, err := h.service.SubmitResponse(r.Context(), attemptID, *req.QuestionIdx, req.SelectedOption); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// FinishAttempt completes through the live play session when there is one;
// its session clock then supplies the time taken.
func (h *Handler) FinishAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	var req finishRequest
	if err := h.decodeOptional(r, &req); err != nil {
		respondError(w, err)
		return
	}

	var (
		attempt domain.Attempt
		err     error
	)
	if monitor, ok := h.registry.Get(attemptID); ok {
		var outcome app.FinishOutcome
		outcome, err = monitor.Complete(r.Context())
		attempt = outcome.Attempt
	} else {
		var taken *time.Duration
		if req.TimeTakenSeconds != nil {
			d := time.Duration(*req.TimeTakenSeconds * float64(time.Second))
			taken = &d
		}
		attempt, err = h.service.FinishAttempt(r.Context(), attemptID, taken)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "score": attempt.Score})
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.Progress(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), chi.URLParam(r, "ref"), r.URL.Query().Get("token"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) ResultsXLSX(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), chi.URLParam(r, "ref"), r.URL.Query().Get("token"))
	if err != nil {
		respondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteResults(&buf, results); err != nil {
		h.logger.ErrorContext(r.Context(), "results export failed", "quiz_id", results.Quiz.ID, "error", err)
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", results.Quiz.Slug+"-results.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) decodeValid(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst, false); err != nil {
		return err
	}
	return h.check(dst)
}

func (h *Handler) decodeOptional(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst, true); err != nil {
		return err
	}
	return h.check(dst)
}

func (h *Handler) check(dst any) error {
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.InvalidInputf("%s is invalid (%s)", lowerFirst(fe.Field()), fe.Tag())
		}
		return domain.InvalidInputf("invalid request")
	}
	return nil
}

func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.InvalidInputf("invalid JSON body")
	}
	return nil
}

// organizerPassword reads the password from the X-Organizer-Password header
// or a JSON body.
func organizerPassword(r *http.Request) (string, error) {
	if p := r.Header.Get("X-Organizer-Password"); p != "" {
		return p, nil
	}
	var req passwordRequest
	if err := decodeJSON(r, &req, true); err != nil {
		return "", err
	}
	return req.Password, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
