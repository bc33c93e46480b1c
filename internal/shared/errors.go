package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired indicates no authenticated actor on the request.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrPermissionDenied indicates the actor lacks a required permission or role.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict indicates a stale version token.
	ErrConflict = errors.New("version conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports a missing or malformed request precondition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is required for concurrency control", e.Field)
}

// MissingVersionToken builds the ValidationError for an absent version token.
func MissingVersionToken(field string) *ValidationError {
	return &ValidationError{Field: field}
}

// ConflictError carries the authoritative current state of an entity whose
// version token no longer matched, so the caller can reconcile and retry.
type ConflictError struct {
	Entity  string
	Current any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s was modified by another request", e.Entity)
}

// Is lets errors.Is(err, ErrConflict) match a ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// UserSafeMessage maps an error to text safe to show to callers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrPermissionDenied):
		return "Forbidden"
	case errors.Is(err, ErrAuthenticationRequired):
		return "Unauthorized"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	default:
		return "Something went wrong, please try again"
	}
}
