package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Sightline error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // 400
	ErrGovernanceBlocked    ErrorCode = "GOVERNANCE_BLOCKED"    // 403
	ErrNotFound             ErrorCode = "NOT_FOUND"             // 404
	ErrConflict             ErrorCode = "CONFLICT"              // 409
	ErrConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED" // 409
	ErrQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"        // 429
	ErrInternal             ErrorCode = "INTERNAL"              // 500
	ErrGenerationFailed     ErrorCode = "GENERATION_FAILED"     // 502
)

// SightlineError represents a structured error with code, status, and details.
// User-facing errors always carry a NextStep alongside the Message.
type SightlineError struct {
	Code     ErrorCode
	Status   int
	Message  string
	NextStep string
	Details  map[string]any
	cause    error
}

// Error implements the error interface.
func (e *SightlineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *SightlineError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for structurally invalid input.
func NewInvalidRequest(msg string) *SightlineError {
	return &SightlineError{
		Code:     ErrInvalidRequest,
		Status:   400,
		Message:  msg,
		NextStep: "fix the request and try again",
	}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(kind, identifier string) *SightlineError {
	return &SightlineError{
		Code:     ErrNotFound,
		Status:   404,
		Message:  fmt.Sprintf("%s not found: %s", kind, identifier),
		NextStep: "check the identifier",
		Details:  map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for a concurrent modification or a
// workflow rule that rejects the request outright.
func NewConflict(msg string) *SightlineError {
	return &SightlineError{
		Code:     ErrConflict,
		Status:   409,
		Message:  msg,
		NextStep: "state changed, refresh and retry",
	}
}

// NewConfirmationRequired creates a 409 error for a destructive save that
// would clear a non-empty live value.
func NewConfirmationRequired(field string) *SightlineError {
	return &SightlineError{
		Code:     ErrConfirmationRequired,
		Status:   409,
		Message:  fmt.Sprintf("saving empty content will clear %q", field),
		NextStep: "confirm that this field should be cleared",
		Details:  map[string]any{"field_group": field},
	}
}

// NewGovernanceBlocked creates a 403 error for an apply attempted while
// governance is not CAN_APPLY.
func NewGovernanceBlocked(state, category, reason, nextStep string) *SightlineError {
	return &SightlineError{
		Code:     ErrGovernanceBlocked,
		Status:   403,
		Message:  reason,
		NextStep: nextStep,
		Details:  map[string]any{"state": state, "category": category},
	}
}

// NewPermissionDenied creates a 403 error for an action the caller's role
// does not allow. It shares the governance code so clients handle both alike.
func NewPermissionDenied(action string, role string) *SightlineError {
	return &SightlineError{
		Code:     ErrGovernanceBlocked,
		Status:   403,
		Message:  fmt.Sprintf("role %q may not %s", role, action),
		NextStep: "ask a project owner",
		Details:  map[string]any{"category": "permission", "action": action},
	}
}

// NewGenerationFailed creates a 502 error when the generator fails or times out.
func NewGenerationFailed(err error) *SightlineError {
	msg := "draft generation failed"
	if err != nil {
		msg = fmt.Sprintf("draft generation failed: %v", err)
	}
	return &SightlineError{
		Code:     ErrGenerationFailed,
		Status:   502,
		Message:  msg,
		NextStep: "retry generation",
		cause:    err,
	}
}

// NewQuotaExceeded creates a 429 error when a project has used its AI quota.
func NewQuotaExceeded(projectID string, used, limit int) *SightlineError {
	return &SightlineError{
		Code:     ErrQuotaExceeded,
		Status:   429,
		Message:  fmt.Sprintf("AI quota exhausted for project %q: %d of %d used today", projectID, used, limit),
		NextStep: "reuse an existing draft or try again tomorrow",
		Details:  map[string]any{"project_id": projectID, "used": used, "limit": limit},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SightlineError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SightlineError{
		Code:     ErrInternal,
		Status:   500,
		Message:  msg,
		NextStep: "try again later",
		cause:    err,
	}
}

// Code returns the code of a SightlineError in err's chain, or "" if there is none.
func Code(err error) ErrorCode {
	var sErr *SightlineError
	if stderrors.As(err, &sErr) {
		return sErr.Code
	}
	return ""
}

// Is checks if an error is (or wraps) a SightlineError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SightlineError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}
