package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrStorageUnavailable means the datastore could not be reached. It must never
	// be reported to a client as a credential failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Validation errors
var (
	ErrInvalidInput = fmt.Errorf("%w: invalid input", ErrBadRequest)
	ErrWeakPassword = fmt.Errorf("%w: password does not meet policy", ErrBadRequest)
	ErrInvalidEmail = fmt.Errorf("%w: invalid email address", ErrBadRequest)
)

// Authentication errors
var (
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrWrongCurrentPassword = fmt.Errorf("%w: current password is incorrect", ErrUnauthorized)
	ErrRateLimited          = errors.New("too many failed attempts")

	// Account state errors
	ErrAccountSuspended = fmt.Errorf("%w: account is suspended", ErrUnauthorized)
	ErrAccountPending   = fmt.Errorf("%w: account is pending activation", ErrUnauthorized)
)

// Token errors
var (
	ErrInvalidToken               = fmt.Errorf("%w: invalid session token", ErrUnauthorized)
	ErrTokenExpired               = fmt.Errorf("%w: session expired", ErrUnauthorized)
	ErrInvalidOrExpiredResetToken = fmt.Errorf("%w: invalid or expired reset token", ErrUnauthorized)
)

// Conflict errors
var (
	ErrDuplicateUsername = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrDuplicateEmail    = fmt.Errorf("%w: email already registered", ErrConflict)
)

// ValidationError reports a single field that failed validation.
// Err is one of the validation sentinels so callers can match with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}
