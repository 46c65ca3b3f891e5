package auth

import (
	"errors"
	"strings"

	"quiz-attempt-service/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

// PasswordGate checks the organizer master password against a bcrypt hash.
type PasswordGate struct {
	hash []byte
}

// NewPasswordGate accepts a bcrypt hash.
func NewPasswordGate(hash string) (*PasswordGate, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &PasswordGate{hash: []byte(hash)}, nil
}

// NewPasswordGateFromPlain hashes a plaintext password once at startup.
func NewPasswordGateFromPlain(password string) (*PasswordGate, error) {
	if password == "" {
		return nil, errors.New("organizer password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PasswordGate{hash: hash}, nil
}

func (g *PasswordGate) CheckPassword(password string) error {
	if password == "" {
		return domain.ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return domain.ErrInvalidPassword
	}
	return nil
}
