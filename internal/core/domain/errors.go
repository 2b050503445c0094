// Package domain defines the core domain models for AuthMesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form AM-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "AM-AUTH-4090")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrMalformedRequest indicates a frame whose payload cannot be parsed.
	ErrMalformedRequest = NewDomainError("AM-AUTH-4000", "malformed request")

	// ErrProtocolViolation indicates a step arrived out of order or failed
	// verification.
	ErrProtocolViolation = NewDomainError("AM-AUTH-4010", "protocol violation")

	// ErrIdentityBanned indicates the identity is on the ban list.
	ErrIdentityBanned = NewDomainError("AM-AUTH-4030", "identity banned")

	// ErrUnknownIdentity indicates the identity has no usable record.
	ErrUnknownIdentity = NewDomainError("AM-AUTH-4040", "unknown identity")

	// ErrDuplicateAttempt indicates the origin already has an authentication
	// entry.
	ErrDuplicateAttempt = NewDomainError("AM-AUTH-4090", "authentication already attempted")

	// ErrSigningFailure indicates the registration could not be signed.
	ErrSigningFailure = NewDomainError("AM-AUTH-5000", "signing failed")

	// ErrLookupUnavailable indicates no lookup could be started (budget
	// exhausted or all workers busy).
	ErrLookupUnavailable = NewDomainError("AM-AUTH-5030", "identity lookup unavailable")
)

// ============================================================================
// Identity Store Errors (IDNT)
// ============================================================================

var (
	// ErrIdentityValidation indicates an identity record failed validation.
	ErrIdentityValidation = NewDomainError("AM-IDNT-4001", "identity record validation failed")

	// ErrIdentityConflict indicates the identity is already enrolled.
	ErrIdentityConflict = NewDomainError("AM-IDNT-4090", "identity already enrolled")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("AM-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("AM-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("AM-SYS-5030", "service unavailable")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("AM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("AM-ARG-1002", "missing required argument")
)
