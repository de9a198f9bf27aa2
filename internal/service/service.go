// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"errors"
	"strings"
)

// ValidationError reports bad input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// ErrPasswordMismatch is returned by Register when the confirmation does not
// match the password.
var ErrPasswordMismatch = invalid("confirm_password", "passwords do not match")

var (
	// ErrUsernameTaken and ErrEmailTaken are the registration conflicts.
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")

	// ErrInvalidCredentials is returned by Login for an unknown user or a
	// wrong password; the two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthenticated is returned when an operation needs a logged-in
	// user and none is present or the session is no longer valid.
	ErrUnauthenticated = errors.New("please log in first")
)

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
