package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the services and mapped to HTTP statuses by the
// API layer. Wrap them with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrNotFoundOrForbidden conflates "missing" and "not yours" so callers
	// cannot probe for the existence of other users' prompts.
	ErrNotFoundOrForbidden = errors.New("not found or forbidden")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("concurrent modification")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrDuplicate           = errors.New("already exists")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidOperationf wraps ErrInvalidOperation with a formatted message.
func InvalidOperationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}
