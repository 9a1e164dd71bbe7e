package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("access forbidden: you don't own this resource")
	ErrInvalidID = errors.New("invalid id")

	// ErrMalformedRow is returned when a stored row is missing a required field
	// or holds a value outside its allowed range.
	ErrMalformedRow = errors.New("malformed row")

	ErrTotalUnavailable    = errors.New("total unavailable: pricing configuration is incomplete")
	ErrInvalidQuantity     = errors.New("invalid add-on quantity")
	ErrPromoNotFound       = errors.New("promo not found")
	ErrNoGatewayConfigured = errors.New("no payment gateway available")
	ErrProviderNotAllowed  = errors.New("payment provider not available for this checkout")
	ErrStepLocked          = errors.New("wizard step prerequisites not met")
	ErrAttemptFinished     = errors.New("payment attempt already finished")
	ErrDuplicateAttempt    = errors.New("payment attempt already exists for this idempotency key")
	ErrUnavailable         = errors.New("service temporarily unavailable, please try again")
	ErrInvalidSignature    = errors.New("invalid notification signature")
)

// ValidationError carries per-field messages for inline display.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// NewValidationError builds a ValidationError for a single field
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// GatewayError is a failure reported by (or while talking to) a payment provider.
// It is always safe to retry the same checkout attempt after one.
type GatewayError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: gateway error (status %d)", e.Provider, e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the buyer
func (e *GatewayError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "payment failed, please try again"
}
