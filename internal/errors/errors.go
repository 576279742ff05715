package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Loam error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrConflict          ErrorCode = "CONFLICT"           // 409
	ErrValidationFailure ErrorCode = "VALIDATION_FAILURE" // 422
	ErrIndexDegraded     ErrorCode = "INDEX_DEGRADED"     // 503
	ErrStorageFailure    ErrorCode = "STORAGE_FAILURE"    // 500
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// LoamError represents a structured error with code, status, and details.
type LoamError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *LoamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LoamError {
	return &LoamError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown path or archive ID.
func NewNotFound(identifier string) *LoamError {
	return &LoamError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not tracked: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for a duplicate registration whose content
// hash diverges from the active record.
func NewConflict(path, existingHash, newHash string) *LoamError {
	return &LoamError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("path %q already registered with different content (pass update to replace)", path),
		Details: map[string]any{"path": path, "existing_hash": existingHash, "new_hash": newHash},
	}
}

// NewValidationFailure creates a 422 error for a consolidation destination
// that failed validation. The Apply that produced it made zero mutations.
func NewValidationFailure(destination, reason string) *LoamError {
	return &LoamError{
		Code:    ErrValidationFailure,
		Status:  422,
		Message: fmt.Sprintf("destination %q failed validation: %s", destination, reason),
		Details: map[string]any{"destination": destination, "reason": reason},
	}
}

// NewIndexDegraded creates a 503 error for a partially unreadable search
// index. Search callers surface this as PartialResult rather than failing.
func NewIndexDegraded(segments []string) *LoamError {
	return &LoamError{
		Code:    ErrIndexDegraded,
		Status:  503,
		Message: fmt.Sprintf("index degraded: %d unreadable segment(s)", len(segments)),
		Details: map[string]any{"segments": segments},
	}
}

// NewStorageFailure creates a 500 error for an unavailable durable store.
// The operation that hit it must leave prior state intact.
func NewStorageFailure(op string, err error) *LoamError {
	e := &LoamError{
		Code:    ErrStorageFailure,
		Status:  500,
		Message: fmt.Sprintf("storage failure during %s", op),
		Details: map[string]any{"operation": op},
	}
	if err != nil {
		e.Details["storage_error"] = err.Error()
	}
	return e
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the original error goes into Details for logging.
func NewInternal(err error) *LoamError {
	e := &LoamError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: map[string]any{},
	}
	if err != nil {
		e.Details["internal_error"] = err.Error()
	}
	return e
}

// Is checks if an error (or any error it wraps) is a LoamError with the
// given code.
func Is(err error, code ErrorCode) bool {
	var lErr *LoamError
	if stderrors.As(err, &lErr) {
		return lErr.Code == code
	}
	return false
}
