// Package errors provides error code definitions for the platform boundary.
package errors

import "fmt"

// ErrorCode represents a unique error code that can be bridged to the app layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Queue errors
	ErrQueueItemNotFound ErrorCode = "QUEUE_ITEM_NOT_FOUND"
	ErrQueuePayload      ErrorCode = "QUEUE_PAYLOAD_INVALID"

	// Sync errors
	ErrSyncOffline      ErrorCode = "SYNC_OFFLINE"
	ErrSyncLockHeld     ErrorCode = "SYNC_LOCK_HELD"
	ErrSyncTransport    ErrorCode = "SYNC_TRANSPORT"
	ErrSyncRejected     ErrorCode = "SYNC_REJECTED"
	ErrSyncConflict     ErrorCode = "SYNC_CONFLICT"
	ErrSyncRetryCeiling ErrorCode = "SYNC_RETRY_CEILING"
	ErrSyncFailed       ErrorCode = "SYNC_FAILED"

	// Config errors
	ErrConfigLoad    ErrorCode = "CONFIG_LOAD_FAILED"
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
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

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
