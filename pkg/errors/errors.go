package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrValidation           = errors.New("validation failed")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrInstallmentNotFound  = errors.New("installment not found")
	ErrAlreadyPaid          = errors.New("installment is already paid")
	ErrAlreadyDecided       = errors.New("application has already been decided")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrApplicationNotActive = errors.New("application is not active")
	ErrDependencyDegraded   = errors.New("dependency degraded")
	ErrInvariantViolation   = errors.New("invariant violation")
	ErrDatabase             = errors.New("database operation failed")
	ErrCache                = errors.New("cache operation failed")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeApplicationNotFound  = "APPLICATION_NOT_FOUND"
	ErrCodeInstallmentNotFound  = "INSTALLMENT_NOT_FOUND"
	ErrCodeAlreadyPaid          = "ALREADY_PAID"
	ErrCodeAlreadyDecided       = "ALREADY_DECIDED"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeApplicationNotActive = "APPLICATION_NOT_ACTIVE"
	ErrCodeDependencyDegraded   = "DEPENDENCY_DEGRADED"
	ErrCodeInvariantViolation   = "INVARIANT_VIOLATION"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
)

// CodeOf returns the business code carried by err, or "" if none.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Wrap common errors with business context
func WrapValidation(field, message string) *BusinessError {
	return NewBusinessError(
		ErrCodeValidation,
		fmt.Sprintf("%s: %s", field, message),
		ErrValidation,
	)
}

func WrapApplicationNotFound(applicationID string) *BusinessError {
	return NewBusinessError(
		ErrCodeApplicationNotFound,
		fmt.Sprintf("Application with ID %s not found", applicationID),
		ErrApplicationNotFound,
	)
}

func WrapInstallmentNotFound(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeInstallmentNotFound,
		fmt.Sprintf("Installment with ID %s not found", installmentID),
		ErrInstallmentNotFound,
	)
}

func WrapAlreadyPaid(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyPaid,
		fmt.Sprintf("Installment with ID %s is already paid", installmentID),
		ErrAlreadyPaid,
	)
}

func WrapAlreadyDecided(applicationID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyDecided,
		fmt.Sprintf("Application with ID %s was already decided (status %s)", applicationID, status),
		ErrAlreadyDecided,
	)
}

func WrapInvalidTransition(entity, from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		ErrInvalidTransition,
	)
}

func WrapApplicationNotActive(applicationID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeApplicationNotActive,
		fmt.Sprintf("Application with ID %s is %s, not ACTIVE", applicationID, status),
		ErrApplicationNotActive,
	)
}

func WrapDependencyDegraded(dependency string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDependencyDegraded,
		fmt.Sprintf("%s unavailable: %v", dependency, err),
		ErrDependencyDegraded,
	)
}

func WrapInvariantViolation(applicationID, detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvariantViolation,
		fmt.Sprintf("Application %s: %s", applicationID, detail),
		ErrInvariantViolation,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		errors.Join(ErrDatabase, err),
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		errors.Join(ErrCache, err),
	)
}
