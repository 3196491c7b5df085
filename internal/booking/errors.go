package booking

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownService    = errors.New("unknown or inactive service")
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
