package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique value such as an e-mail is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned when an e-mail and password pair does not match an account.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrEmailNotConfirmed is returned when the account exists but its e-mail was never confirmed.
	ErrEmailNotConfirmed = errors.New("application: email not confirmed")
	// ErrAccountDisabled is returned when a deactivated account tries to sign in.
	ErrAccountDisabled = errors.New("application: account disabled")
	// ErrSessionExpired is returned when the session token is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when the session token was signed out.
	ErrSessionRevoked = errors.New("application: session revoked")
	// ErrUpstreamUnavailable is returned when a backing store cannot be reached.
	ErrUpstreamUnavailable = errors.New("application: upstream unavailable")
	// ErrConflict is returned when the resource is not in a state that allows the operation.
	ErrConflict = errors.New("application: conflict")
	// ErrCapacityReached is returned when an event has no seats left.
	ErrCapacityReached = errors.New("application: capacity reached")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// orNil returns nil when nothing was recorded so callers can return it directly.
func (v *ValidationError) orNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// Auth error codes reported to sign-in and sign-up callers.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeAccountDisabled    = "account_disabled"
	CodeValidation         = "validation_error"
	CodeEmailTaken         = "email_taken"
)

// AuthError wraps an identity failure with the stable code clients branch on.
type AuthError struct {
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "auth: " + e.Code
	}
	return "auth: " + e.Code + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func authError(err error) error {
	if err == nil {
		return nil
	}
	var existing *AuthError
	if errors.As(err, &existing) {
		return err
	}
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return &AuthError{Code: CodeValidation, Err: err}
	case errors.Is(err, ErrInvalidCredentials):
		return &AuthError{Code: CodeInvalidCredentials, Err: err}
	case errors.Is(err, ErrEmailNotConfirmed):
		return &AuthError{Code: CodeEmailNotConfirmed, Err: err}
	case errors.Is(err, ErrAccountDisabled):
		return &AuthError{Code: CodeAccountDisabled, Err: err}
	case errors.Is(err, ErrAlreadyExists):
		return &AuthError{Code: CodeEmailTaken, Err: err}
	}
	return err
}
