package service

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials is returned for both an unknown email and a wrong
	// password so the two cannot be told apart.
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrDuplicateAccount      = errors.New("account with that email address already exists")
	ErrTokenInvalidOrExpired = errors.New("password reset token is invalid or has expired")
	ErrHash                  = errors.New("password could not be processed")
	ErrNotFound              = errors.New("user not found")
	ErrSessionNotFound       = errors.New("session not found or expired")
	ErrMailDelivery          = errors.New("message could not be sent")
)

// FieldError is one failed check on a form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every failed check of a submitted form.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages(), "; ")
}

// Messages returns the messages in the order the checks failed.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Message
	}
	return msgs
}

func (e *ValidationError) add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// err returns nil when no check failed.
func (e *ValidationError) err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// AsValidation unwraps a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
