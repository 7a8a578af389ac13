package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped sentinels compare equal
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// StateConflictError is returned when an operation is attempted from a state
// that does not allow it. It always carries the state the entity is actually in
// so callers can reconcile instead of retrying blindly.
type StateConflictError struct {
	Entity       string `json:"entity"`
	Operation    string `json:"operation"`
	CurrentState string `json:"current_state"`
}

// NewStateConflictError creates a state conflict error
func NewStateConflictError(entity, operation, currentState string) *StateConflictError {
	return &StateConflictError{
		Entity:       entity,
		Operation:    operation,
		CurrentState: currentState,
	}
}

// Error implements the error interface
func (e *StateConflictError) Error() string {
	return fmt.Sprintf("Cannot %s %s in %s status", e.Operation, e.Entity, e.CurrentState)
}

// Code returns the machine-readable error code
func (e *StateConflictError) Code() string {
	return ErrInvalidState.Code
}

// Is lets errors.Is(err, ErrInvalidState) match state conflicts
func (e *StateConflictError) Is(target error) bool {
	return target == ErrInvalidState
}

// IsStateConflict reports whether err is a state conflict and returns it
func IsStateConflict(err error) (*StateConflictError, bool) {
	var sc *StateConflictError
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}
