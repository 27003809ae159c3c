// Package domain defines the core domain models for memgate.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the format MG-<AREA>-<NNNN>; the last four digits mirror the
// closest HTTP status so operators can tell client faults from system faults.
type DomainError struct {
	Code    string // Error code (e.g., "MG-RDM-4010")
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

// Is reports whether target is a DomainError with the same code.
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
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrDuplicateContact indicates a member with the same email already exists.
	ErrDuplicateContact = NewDomainError("MG-STOR-4090", "duplicate contact address")

	// ErrDuplicateToken indicates a member with the same token already exists.
	ErrDuplicateToken = NewDomainError("MG-STOR-4091", "duplicate token")

	// ErrMemberNotFound indicates no member matched the lookup.
	ErrMemberNotFound = NewDomainError("MG-STOR-4040", "member not found")

	// ErrMemberValidation indicates member data failed validation.
	ErrMemberValidation = NewDomainError("MG-STOR-4001", "member validation failed")
)

// ============================================================================
// Redemption Errors (RDM)
//
// These are reported to the requester and are not system failures.
// ============================================================================

var (
	// ErrMissingToken indicates the redemption request carried no token.
	ErrMissingToken = NewDomainError("MG-RDM-4000", "missing token")

	// ErrInvalidToken indicates the token does not match any member.
	ErrInvalidToken = NewDomainError("MG-RDM-4010", "invalid token")

	// ErrWrongContext indicates the request came from outside the redemption channel.
	ErrWrongContext = NewDomainError("MG-RDM-4030", "wrong redemption context")

	// ErrAlreadyRedeemed indicates the token was already consumed.
	ErrAlreadyRedeemed = NewDomainError("MG-RDM-4090", "token already redeemed")
)

// ============================================================================
// Collaborator / Configuration Errors (CFG, CAP)
//
// Logged for an operator; the requester only sees a generic apology.
// ============================================================================

var (
	// ErrPrivilegeNotFound indicates the privilege id does not resolve on the platform.
	ErrPrivilegeNotFound = NewDomainError("MG-CFG-5002", "privilege not found")

	// ErrTransportFailure indicates the notification could not be dispatched.
	ErrTransportFailure = NewDomainError("MG-CAP-5020", "transport failure")

	// ErrCapabilityPermissionDenied indicates the platform refused an operation.
	ErrCapabilityPermissionDenied = NewDomainError("MG-CAP-4030", "capability permission denied")
)

// ============================================================================
// Roster Errors (ROS)
// ============================================================================

var (
	// ErrRowInvalid indicates a roster row failed normalization.
	ErrRowInvalid = NewDomainError("MG-ROS-4001", "invalid roster row")

	// ErrSourceUnavailable indicates a roster or template source could not be read.
	ErrSourceUnavailable = NewDomainError("MG-ROS-4040", "source unavailable")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an unexpected internal error.
	ErrInternal = NewDomainError("MG-SYS-5000", "internal error")

	// ErrStorage indicates a storage layer error.
	ErrStorage = NewDomainError("MG-SYS-5001", "storage error")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("MG-SYS-4000", "invalid argument")
)
