package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrAuthRequired        = errors.New("authentication required")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrConflict            = errors.New("user already exists with this email")
	ErrAlreadySubscribed   = errors.New("user already has an active subscription")
	ErrPaymentIncomplete   = errors.New("unable to create payment intent for subscription")
	ErrUserNotFound        = errors.New("user not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrGeneration          = errors.New("failed to generate speech")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrNotConfigured       = errors.New("not configured")
	ErrInternal            = errors.New("internal error")
)

// FieldError is a single per-field validation violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violated field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// ProviderError is a failure reported by an external TTS or payment provider.
// Kind is ErrProviderUnavailable or ErrGeneration.
type ProviderError struct {
	Kind       error
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s returned %d: %s", e.Kind, e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Kind }

// classifyProviderStatus maps a provider HTTP status to an error kind. Quota, auth
// and rate-limit failures and provider outages are something the user can retry later.
func classifyProviderStatus(status int) error {
	switch {
	case status == 401, status == 402, status == 403, status == 429:
		return ErrProviderUnavailable
	case status >= 500:
		return ErrProviderUnavailable
	default:
		return ErrGeneration
	}
}

func newProviderError(provider string, status int, message string) *ProviderError {
	return &ProviderError{
		Kind:       classifyProviderStatus(status),
		Provider:   provider,
		StatusCode: status,
		Message:    message,
	}
}
