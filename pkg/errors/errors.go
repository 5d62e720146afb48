package errors

import "fmt"

// Error codes for the quota service.
const (
	// Domain errors
	ErrCodeDungeonNotFound = "DUNGEON_NOT_FOUND"
	ErrCodeInvalidSubject  = "INVALID_SUBJECT"

	// Database errors
	ErrCodeDatabaseError = "DATABASE_ERROR"

	// Config errors
	ErrCodeConfigInvalid = "CONFIG_INVALID"

	// Validation errors
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
)

// QuotaError represents an error in the quota service.
type QuotaError struct {
	Code    string
	Message string
	Err     error
}

func (e *QuotaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// NewQuotaError creates a new QuotaError.
func NewQuotaError(code, message string, err error) *QuotaError {
	return &QuotaError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrDungeonNotFound returns an error when a dungeon key is not in the
// catalog.
func ErrDungeonNotFound(dungeonKey string) *QuotaError {
	return &QuotaError{
		Code:    ErrCodeDungeonNotFound,
		Message: fmt.Sprintf("dungeon not found: %s", dungeonKey),
		Err:     nil,
	}
}

// ErrInvalidSubject wraps a malformed subject-id encoding. Subject parse
// failures in the read path indicate a bug in whatever wrote the row and
// are surfaced, never coerced.
func ErrInvalidSubject(subjectID string, err error) *QuotaError {
	return &QuotaError{
		Code:    ErrCodeInvalidSubject,
		Message: fmt.Sprintf("invalid subject id: %s", subjectID),
		Err:     err,
	}
}

// ErrDatabaseError wraps database errors.
func ErrDatabaseError(operation string, err error) *QuotaError {
	return &QuotaError{
		Code:    ErrCodeDatabaseError,
		Message: fmt.Sprintf("database error during %s", operation),
		Err:     err,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(reason string) *QuotaError {
	return &QuotaError{
		Code:    ErrCodeConfigInvalid,
		Message: fmt.Sprintf("invalid configuration: %s", reason),
		Err:     nil,
	}
}

// ErrValidationFailed returns a validation error.
func ErrValidationFailed(field, reason string) *QuotaError {
	return &QuotaError{
		Code:    ErrCodeValidationFailed,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Err:     nil,
	}
}
