package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service unwraps to one of these.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyAnswered = errors.New("question already answered")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrStorage         = errors.New("storage failure")
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = kinded(ErrNotFound, "quiz not found")
	// ErrAttemptNotFound is returned for unknown attempt ids.
	ErrAttemptNotFound = kinded(ErrNotFound, "attempt not found")
	// ErrAttemptFinished rejects submissions once the attempt is terminal.
	ErrAttemptFinished = kinded(ErrInvalidInput, "attempt already finished")
	// ErrAttemptInPlay is returned when another play session owns the attempt.
	ErrAttemptInPlay = kinded(ErrInvalidInput, "attempt is already being played")
	// ErrInvalidToken rejects an organizer capability token that does not match.
	ErrInvalidToken = kinded(ErrForbidden, "invalid token")
	// ErrTokenRequired is returned when no capability token was presented.
	ErrTokenRequired = kinded(ErrUnauthorized, "token required")
	// ErrInvalidPassword rejects a bad organizer password.
	ErrInvalidPassword = kinded(ErrUnauthorized, "invalid password")
)

type kindError struct {
	kind error
	msg  string
}

func kinded(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// InvalidInputf builds an ErrInvalidInput with a caller-facing message.
func InvalidInputf(format string, args ...any) error {
	return kinded(ErrInvalidInput, fmt.Sprintf(format, args...))
}

// StorageError wraps a store failure so it matches both ErrStorage and cause.
func StorageError(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, cause)
}

// Kind returns the error kind err unwraps to, or nil for unclassified errors.
func Kind(err error) error {
	for _, kind := range []error{ErrAlreadyAnswered, ErrInvalidInput, ErrNotFound, ErrUnauthorized, ErrForbidden, ErrStorage} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
