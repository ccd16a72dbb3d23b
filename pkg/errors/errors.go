package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Guard parsing errors
	ErrMalformedGuard ErrorCode = "MALFORMED_GUARD"

	// Matching errors
	ErrNoMatchFound ErrorCode = "NO_MATCH_FOUND"

	// Apply/clear errors
	ErrPartialApply ErrorCode = "PARTIAL_APPLY"

	// Configuration errors
	ErrConfigParse       ErrorCode = "CONFIG_PARSE"
	ErrVariableUndefined ErrorCode = "VARIABLE_UNDEFINED"

	// Patch store errors
	ErrPatchLoad  ErrorCode = "PATCH_LOAD"
	ErrPatchStore ErrorCode = "PATCH_STORE"

	// FileSystem errors
	ErrFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess    ErrorCode = "FILE_ACCESS"
	ErrFileWrite     ErrorCode = "FILE_WRITE"
	ErrSymlinkCreate ErrorCode = "SYMLINK_CREATE"
	ErrDirCreate     ErrorCode = "DIR_CREATE"
)

// CrysknifeError represents a structured error with code and details
type CrysknifeError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *CrysknifeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *CrysknifeError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *CrysknifeError) Is(target error) bool {
	var targetErr *CrysknifeError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new CrysknifeError with the given code and message
func New(code ErrorCode, message string) *CrysknifeError {
	return &CrysknifeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new CrysknifeError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *CrysknifeError {
	return &CrysknifeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a CrysknifeError
func Wrap(err error, code ErrorCode, message string) *CrysknifeError {
	if err == nil {
		return nil
	}
	return &CrysknifeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *CrysknifeError {
	if err == nil {
		return nil
	}
	return &CrysknifeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *CrysknifeError) WithDetail(key string, value interface{}) *CrysknifeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var ckErr *CrysknifeError
	if errors.As(err, &ckErr) {
		return ckErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a CrysknifeError
func GetErrorCode(err error) ErrorCode {
	var ckErr *CrysknifeError
	if errors.As(err, &ckErr) {
		return ckErr.Code
	}
	return ErrUnknown
}
