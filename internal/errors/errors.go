// Package errors provides error code definitions shared across the core.
package errors

import "fmt"

// ErrorCode represents a unique, machine-checkable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDuplicate  ErrorCode = "DUPLICATE"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrDatabase           ErrorCode = "DATABASE_ERROR"
	ErrMigration          ErrorCode = "MIGRATION_FAILED"
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// Document errors
	ErrDocumentNotFound  ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrWorkspaceNotFound ErrorCode = "WORKSPACE_NOT_FOUND"

	// Sync errors
	ErrTransport        ErrorCode = "TRANSPORT_ERROR"
	ErrSyncFailed       ErrorCode = "SYNC_FAILED"
	ErrSyncConflict     ErrorCode = "SYNC_CONFLICT"
	ErrSyncInProgress   ErrorCode = "SYNC_IN_PROGRESS"
	ErrConflictNotFound ErrorCode = "CONFLICT_NOT_FOUND"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code. The check walks wrapped
// errors so a transport failure stays recognizable through wrapping.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			if appErr.Code == code {
				return true
			}
			err = appErr.Err
			continue
		}
		return false
	}
	return false
}

// Code returns the error code of err, or ErrInternal for foreign errors.
func Code(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
