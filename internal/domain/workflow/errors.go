package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrValidation marks malformed or duplicate step data rejected before persistence
	ErrValidation = errors.New("validation failed")

	// ErrNotAuthorized is returned when the actor is not an assigned approver of the current step
	ErrNotAuthorized = errors.New("actor is not authorized for this step")

	// ErrNotApprovable is returned when approval is attempted on a step that does not require it
	ErrNotApprovable = errors.New("current step does not require approval")

	// ErrConflict is returned when a write was based on a stale definition version
	ErrConflict = errors.New("workflow definition was modified concurrently")

	// ErrDanglingStepReference is returned when a request points at a step that no longer exists
	ErrDanglingStepReference = errors.New("request references a step that no longer exists")

	// ErrStepNotFound is returned when a step id is not part of the definition
	ErrStepNotFound = errors.New("step not found")

	// ErrRequestNotFound is returned when a document request does not exist
	ErrRequestNotFound = errors.New("document request not found")

	// ErrTerminalState is returned when a transition is attempted on a completed or rejected request
	ErrTerminalState = errors.New("request is in a terminal state")
)

// Validation rule identifiers reported in ValidationError.Rule
const (
	RuleRequired           = "required"
	RuleTooLong            = "too_long"
	RuleDuplicateStatusKey = "duplicate_status_key"
	RuleDuplicateStepID    = "duplicate_step_id"
	RuleInvalidFormat      = "invalid_format"
	RuleUnknownApprover    = "unknown_approver"
	RuleUnknownUser        = "unknown_user"
	RuleInvalidDirection   = "invalid_direction"
	RuleConfirmation       = "confirmation_required"
)

// ValidationError describes the field and rule a rejected change violated
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("validation failed on %s (%s): %s", e.Field, e.Rule, e.Message)
	}
	return fmt.Sprintf("validation failed on %s (%s)", e.Field, e.Rule)
}

// Unwrap lets errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error for a field and rule
func NewValidationError(field, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Rule:    rule,
		Message: message,
	}
}

// IsValidationError reports whether err is (or wraps) a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// AsValidationError extracts the ValidationError from an error chain
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
