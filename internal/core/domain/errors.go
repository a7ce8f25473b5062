// Package domain defines the core domain models for FileBay.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
//
// Codes have the form FB-<AREA>-<NNNN>; the numeric part starts with the
// HTTP status the transport reports for it.
type DomainError struct {
	Code    string // Error code (e.g., "FB-FILE-4040")
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

// Is implements errors.Is() support. Two domain errors match on code.
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
// Session Errors (SESS)
// ============================================================================

var (
	// ErrBusy indicates an upload reservation is already held.
	ErrBusy = NewDomainError("FB-SESS-4090", "upload slot busy, retry later")

	// ErrBadToken indicates the reservation token does not match the live reservation.
	ErrBadToken = NewDomainError("FB-SESS-4030", "reservation token mismatch")

	// ErrInvalidOffset indicates an upload chunk does not continue the blob.
	ErrInvalidOffset = NewDomainError("FB-SESS-4000", "upload offset does not match bytes written")
)

// ============================================================================
// Capacity Errors (CAP)
// ============================================================================

var (
	// ErrCapacityExceeded indicates the live-record limit has been reached.
	ErrCapacityExceeded = NewDomainError("FB-CAP-5070", "file store is full")

	// ErrTooLarge indicates the upload exceeds the configured maximum size.
	ErrTooLarge = NewDomainError("FB-CAP-4130", "file exceeds maximum size")
)

// ============================================================================
// File Errors (FILE)
// ============================================================================

var (
	// ErrFileNotFound indicates no live record is reachable under the code.
	ErrFileNotFound = NewDomainError("FB-FILE-4040", "file not found")

	// ErrInvalidCode indicates the capability code is malformed.
	ErrInvalidCode = NewDomainError("FB-FILE-4000", "invalid file code")
)

// ============================================================================
// Request / Storage / System Errors
// ============================================================================

var (
	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("FB-REQ-4000", "bad request")

	// ErrStorageIO indicates a blob read or write failed.
	ErrStorageIO = NewDomainError("FB-STOR-5000", "storage i/o failure")

	// ErrSnapshotVersion indicates the snapshot was written by an incompatible format.
	ErrSnapshotVersion = NewDomainError("FB-SNAP-5000", "snapshot format version mismatch")

	// ErrInternal indicates an unexpected internal error.
	ErrInternal = NewDomainError("FB-SYS-5000", "internal error")
)
