// Package shared contains common domain types, errors and events
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error carries exactly one of these so callers can
// branch with errors.Is() without knowing the concrete error.
var (
	// Malformed input: non-positive amount, bad criterion, missing field.
	ErrValidation = errors.New("validation error")

	// Unknown student, level, badge or membership.
	ErrNotFound = errors.New("entity not found")

	// Duplicate grant or duplicate unique name/threshold.
	ErrConflict = errors.New("conflict")

	// Actor not authorized for an administrative operation.
	ErrPermission = errors.New("permission denied")

	// Target is not a student where one is required.
	ErrIntegrity = errors.New("integrity violation")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "badge", "level"
	Op      string // Operation that failed, e.g., "Award", "Revoke"
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

// Validation errors
var (
	ErrInvalidAmount    = NewDomainError("ledger", "Validate", ErrValidation, "amount must be a positive integer")
	ErrMissingField     = NewDomainError("shared", "Validate", ErrValidation, "required field is missing")
	ErrInvalidCriterion = NewDomainError("badge", "ParseCriterion", ErrValidation, "malformed criterion")
	ErrInvalidThreshold = NewDomainError("level", "Validate", ErrValidation, "points required must be non-negative")
)

// Not found errors
var (
	ErrStudentNotFound = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrLevelNotFound   = NewDomainError("level", "Find", ErrNotFound, "level not found")
	ErrBadgeNotFound   = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrNotGranted      = NewDomainError("badge", "Revoke", ErrNotFound, "badge is not held by the student")
)

// Conflict errors
var (
	ErrAlreadyGranted     = NewDomainError("badge", "Grant", ErrConflict, "badge already granted")
	ErrLevelAlreadyHeld   = NewDomainError("level", "Assign", ErrConflict, "level already held")
	ErrDuplicateBadgeName = NewDomainError("badge", "Create", ErrConflict, "badge name already exists")
	ErrDuplicateThreshold = NewDomainError("level", "Create", ErrConflict, "a level with this threshold already exists")
)

// Integrity and permission errors
var (
	ErrNotAStudent   = NewDomainError("student", "Check", ErrIntegrity, "target is not a student")
	ErrAdminRequired = NewDomainError("admin", "Authorize", ErrPermission, "administrative access required")
)

// Invalid returns a validation error for op with a specific message,
// keeping base as the matchable cause.
func Invalid(base *DomainError, op, message string) *DomainError {
	return &DomainError{
		Domain:  base.Domain,
		Op:      op,
		Kind:    ErrValidation,
		Message: message,
		Err:     base,
	}
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsIntegrity checks if the error reports a non-student target.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsPermission checks if the error is an authorization failure.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// KindOf returns the error kind of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrPermission, ErrIntegrity} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
