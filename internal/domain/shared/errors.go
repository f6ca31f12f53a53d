// Package shared contains common domain types, errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Portal errors
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrUpstreamTimeout       = fmt.Errorf("upstream timeout: %w", ErrUpstreamUnavailable)
	ErrInvalidCaptcha        = errors.New("invalid captcha")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrNoResultsFound        = errors.New("no results found")
	ErrMalformedUpstreamData = errors.New("malformed upstream data")
	ErrSessionRequired       = errors.New("portal session required")
	ErrRateLimited           = errors.New("rate limited")

	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "portal", "credit", "record"
	Op      string // Operation that failed, e.g., "Login", "Lookup"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Portal errors
var (
	ErrPortalUnavailable  = NewDomainError("portal", "Request", ErrUpstreamUnavailable, "examination portal is unavailable")
	ErrPortalTimeout      = NewDomainError("portal", "Request", ErrUpstreamTimeout, "examination portal did not respond in time")
	ErrPortalNoSession    = NewDomainError("portal", "Login", ErrSessionRequired, "no portal session, fetch a captcha first")
	ErrPortalRateLimited  = NewDomainError("portal", "Request", ErrRateLimited, "portal request budget exhausted")
	ErrPortalBadResponse  = NewDomainError("portal", "Parse", ErrMalformedUpstreamData, "portal returned an unreadable response")
	ErrPortalEmptyResults = NewDomainError("portal", "Login", ErrNoResultsFound, "portal returned no result rows")
)

// Record errors
var (
	ErrNoValidRows  = NewDomainError("record", "Build", ErrMalformedUpstreamData, "every result row was malformed")
	ErrNoRows       = NewDomainError("record", "Build", ErrNoResultsFound, "no result rows to process")
	ErrTooManyCodes = NewDomainError("credit", "Lookup", ErrValueOutOfRange, "too many paper codes in one lookup")
	ErrNoPaperCodes = NewDomainError("credit", "Lookup", ErrInvalidInput, "paperCodes array is required")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsUpstream checks if the error originated from the examination portal being down or slow.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrRateLimited)
}

// RequiresNewCaptcha reports whether the caller must discard its captcha and fetch a new one
// before the next login attempt.
func RequiresNewCaptcha(err error) bool {
	return errors.Is(err, ErrInvalidCaptcha) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrSessionRequired)
}

// IsRetryable checks if the operation can be retried later with the same inputs.
// Login rejections are never retryable: each attempt burns a captcha.
func IsRetryable(err error) bool {
	if RequiresNewCaptcha(err) {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrRateLimited)
}
