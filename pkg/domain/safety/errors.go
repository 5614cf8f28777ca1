package safety

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPrompt         = errors.New("prompt text is required")
	ErrInvalidTemplate     = errors.New("invalid model armor template")
	ErrUnsupportedProvider = errors.New("unsupported generation provider")
)

// AuthError is returned when ambient cloud credentials cannot produce a token.
type AuthError struct {
	Err error
}

func NewAuthError(err error) error {
	return &AuthError{Err: err}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to obtain access token: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ClassifierError covers transport failures and non-2xx answers from the
// classification endpoint. StatusCode is zero when no response was received.
type ClassifierError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ClassifierError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model armor returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("model armor call failed: %v", e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with %s/%s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
