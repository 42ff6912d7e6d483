package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by services and handlers.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for one field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// QuotaError is returned when a creation quota rejects an operation.
// It is a forbidden-class error, distinct from validation failures.
type QuotaError struct {
	Resource string
	Limit    int64
	Daily    bool
}

func (e *QuotaError) Error() string {
	if e.Daily {
		return fmt.Sprintf("daily quota exceeded for %s (limit %d)", e.Resource, e.Limit)
	}
	return fmt.Sprintf("quota exceeded for %s (limit %d)", e.Resource, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrForbidden }

// IsQuota reports whether err carries a QuotaError.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
