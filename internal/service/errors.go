package service

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrCannotDeleteAdmin  = errors.New("admin accounts cannot be deleted")
)

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
