// Package domain defines the error taxonomy shared by the kvgate core.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a core error with a structured error code.
//
// Codes follow KG-<AREA>-<NNNN>; the numeric part mirrors the closest HTTP
// status so operators can group them.
type DomainError struct {
	Code    string // Error code (e.g., "KG-CMD-4040")
	Message string // Client-facing message, without the "ERR " prefix
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

// WithMessage returns a copy of the error carrying a different client message.
func (e *DomainError) WithMessage(message string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: message,
		Details: e.Details,
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

// Reply returns the text of the protocol error reply, without the leading
// '-' and trailing CRLF.
func (e *DomainError) Reply() string {
	if e.Details != "" {
		return "ERR " + e.Message + " " + e.Details
	}
	return "ERR " + e.Message
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
// Admission Errors (CMD / AUTH / SRV)
// ============================================================================

var (
	// ErrUnknownCommand indicates the command name did not resolve.
	ErrUnknownCommand = NewDomainError("KG-CMD-4040", "unknown or unsupported command")

	// ErrArgument indicates the handler rejected its arguments.
	ErrArgument = NewDomainError("KG-CMD-4000", "invalid arguments")

	// ErrExecution indicates the handler failed while running against the store.
	ErrExecution = NewDomainError("KG-CMD-4220", "command failed")

	// ErrAuthRequired indicates the connection may not run the command.
	ErrAuthRequired = NewDomainError("KG-AUTH-4010", "NOAUTH Authentication required.")

	// ErrLocalOnly indicates a local-only command arrived from a remote peer.
	ErrLocalOnly = NewDomainError("KG-AUTH-4030", "command should be localhost")

	// ErrReadOnly indicates a write command was refused in read-only mode.
	ErrReadOnly = NewDomainError("KG-SRV-4050", "Server in read-only")

	// ErrRateLimited indicates the peer exceeded its command rate.
	ErrRateLimited = NewDomainError("KG-SRV-4290", "rate limit exceeded")
)

// ============================================================================
// System Errors (SYS / SRV / WAL)
// ============================================================================

var (
	// ErrInvariant indicates an internal inconsistency. It is never shown to
	// clients as-is; callers fail closed.
	ErrInvariant = NewDomainError("KG-SYS-5000", "internal invariant violated")

	// ErrOutputTooLarge indicates a reply did not fit under the output ceiling.
	ErrOutputTooLarge = NewDomainError("KG-SRV-5070", "buf is too large")

	// ErrLogAppend indicates a successful write could not be appended to the
	// write-ahead log.
	ErrLogAppend = NewDomainError("KG-WAL-5000", "write-ahead log append failed")

	// ErrStorage indicates a storage layer error.
	ErrStorage = NewDomainError("KG-SYS-5001", "storage error")
)
