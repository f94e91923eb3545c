package model

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAuth means the credential is missing, invalid, or the refresh was rejected.
	ErrAuth = errors.New("authorization failed")
	// ErrProvider covers calendar or push service failures other than auth.
	ErrProvider = errors.New("calendar provider error")
	// ErrTransport means an email or SMS send failed.
	ErrTransport = errors.New("notification transport error")
	// ErrNotFound means a referenced row is gone.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
