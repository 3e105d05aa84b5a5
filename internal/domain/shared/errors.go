// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrCapacity        = errors.New("capacity exceeded")
	ErrInsufficient    = errors.New("insufficient funds")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "task", "enrollment", "ledger"
	Op      string // Operation that failed, e.g., "Enroll", "Review"
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

// Profile domain errors
var (
	ErrProfileNotFound      = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrProfileAlreadyExists = NewDomainError("profile", "Create", ErrAlreadyExists, "profile already exists for wallet")
	ErrInvalidWalletAddress = NewDomainError("profile", "Validate", ErrInvalidFormat, "invalid wallet address")
	ErrInvalidRole          = NewDomainError("profile", "Validate", ErrInvalidInput, "invalid profile role")
	ErrProfileDeactivated   = NewDomainError("profile", "CheckStatus", ErrInvalidState, "profile is deactivated")
)

// Task domain errors
var (
	ErrTaskNotFound     = NewDomainError("task", "Find", ErrNotFound, "task not found")
	ErrTaskNotActive    = NewDomainError("task", "CheckStatus", ErrInvalidState, "task is not active")
	ErrCapacityExceeded = NewDomainError("task", "ReserveSeat", ErrCapacity, "task has reached max students")
	ErrInvalidCapacity  = NewDomainError("task", "Validate", ErrValueOutOfRange, "max_students must be positive")
	ErrInvalidAmount    = NewDomainError("task", "Validate", ErrNegativeValue, "amount cannot be negative")
)

// Enrollment domain errors
var (
	ErrEnrollmentNotFound      = NewDomainError("enrollment", "Find", ErrNotFound, "enrollment not found")
	ErrDuplicateEnrollment     = NewDomainError("enrollment", "Enroll", ErrAlreadyExists, "active enrollment already exists for this task")
	ErrInvalidStateTransition  = NewDomainError("enrollment", "Transition", ErrStateTransition, "enrollment state transition not allowed")
	ErrEmptySubmission         = NewDomainError("enrollment", "Submit", ErrEmptyValue, "submission text cannot be empty")
	ErrInvalidReviewScore      = NewDomainError("enrollment", "Review", ErrValueOutOfRange, "review score must be between 1 and 5")
	ErrConcurrentTransition    = NewDomainError("enrollment", "Transition", ErrConcurrentModification, "enrollment was modified concurrently")
	ErrEnrollmentNotReviewable = NewDomainError("enrollment", "Review", ErrInvalidState, "only completed enrollments can be reviewed")
)

// Ledger domain errors
var (
	ErrInsufficientStake = NewDomainError("ledger", "Lock", ErrInsufficient, "available balance below required stake")
	ErrSettlementFailure = NewDomainError("ledger", "Settle", ErrExternalService, "settlement batch could not commit atomically")
	ErrNegativeBalance   = NewDomainError("ledger", "Append", ErrNegativeValue, "entry would drive confirmed balance negative")
	ErrEntryNotFound     = NewDomainError("ledger", "Find", ErrNotFound, "ledger entry not found")
)

// Badge domain errors
var (
	ErrBadgeNotFound    = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrDuplicateBadge   = NewDomainError("badge", "Mint", ErrAlreadyExists, "badge already minted for this student and task")
	ErrMintingFailure   = NewDomainError("badge", "Mint", ErrExternalService, "badge minting workflow failed")
	ErrNotBadgeEligible = NewDomainError("badge", "Mint", ErrInvalidState, "enrollment is not eligible for a badge")
	ErrMintInProgress   = NewDomainError("badge", "Mint", ErrInvalidState, "minting workflow already in progress")
)

// Question domain errors
var (
	ErrQuestionNotFound    = NewDomainError("question", "Find", ErrNotFound, "question not found")
	ErrQuestionNotAllowed  = NewDomainError("question", "Ask", ErrInvalidState, "questions require an active or completed enrollment")
	ErrEmptyQuestionText   = NewDomainError("question", "Ask", ErrEmptyValue, "question text cannot be empty")
	ErrEmptyAnswerText     = NewDomainError("question", "Answer", ErrEmptyValue, "answer text cannot be empty")
	ErrAnswererNotEligible = NewDomainError("question", "Answer", ErrForbidden, "only teachers and mentors can answer")
)

// Recommendation domain errors
var (
	ErrExplanationNotFound = NewDomainError("recommendation", "Find", ErrNotFound, "recommendation explanation not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
