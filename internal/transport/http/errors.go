package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps a domain error kind to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	if errors.Is(err, domain.ErrAttemptInPlay) {
		return http.StatusConflict, "attempt_in_play"
	}
	switch domain.Kind(err) {
	case domain.ErrAlreadyAnswered:
		return http.StatusBadRequest, "already_answered"
	case domain.ErrInvalidInput:
		return http.StatusBadRequest, "invalid_input"
	case domain.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case domain.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case domain.ErrStorage:
		return http.StatusInternalServerError, "storage_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError never exposes storage causes to the client.
func respondError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	respondJSON(w, status, errorBody{Error: msg, Code: code})
}
