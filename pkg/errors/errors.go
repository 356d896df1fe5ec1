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
	ErrUnknown  ErrorCode = "UNKNOWN"
	ErrInternal ErrorCode = "INTERNAL"

	// Outcome taxonomy. Every failure that crosses a component boundary
	// carries exactly one of these four codes (or a more specific code
	// below that maps onto one of them at the reporting layer).
	//
	// ErrUserCanceled: the user declined an interactive recovery or
	// confirmation. Never a bug, never retried, always stops the current
	// operation cleanly.
	ErrUserCanceled ErrorCode = "USER_CANCELED"
	// ErrTemporary: a transient condition; the caller may retry the whole
	// higher-level operation. Reported without a bug-report prompt.
	ErrTemporary ErrorCode = "TEMPORARY"
	// ErrProcessCanceled: the operation is not applicable in the current
	// state (no active method, removal mid-download). Not a bug.
	ErrProcessCanceled ErrorCode = "PROCESS_CANCELED"
	// ErrIO: an unanticipated filesystem failure. Reported with a
	// bug-report prompt.
	ErrIO ErrorCode = "IO"

	// Manifest errors
	ErrManifestLoad ErrorCode = "MANIFEST_LOAD"
	ErrManifestSave ErrorCode = "MANIFEST_SAVE"

	// Deployment errors
	ErrStagingMissing       ErrorCode = "STAGING_MISSING"
	ErrActivatorMissing     ErrorCode = "ACTIVATOR_MISSING"
	ErrActivatorUnsupported ErrorCode = "ACTIVATOR_UNSUPPORTED"

	// Elevation errors
	ErrElevation ErrorCode = "ELEVATION"

	// Configuration errors
	ErrConfigLoad ErrorCode = "CONFIG_LOAD"
)

// ModlinkError represents a structured error with code and details
type ModlinkError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error

	// Trace is the logical call site captured when the error's originating
	// operation began. It is resolved to frames lazily; see Backtrace.
	Trace *Backtrace
}

// Error implements the error interface
func (e *ModlinkError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ModlinkError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *ModlinkError) Is(target error) bool {
	var targetErr *ModlinkError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new ModlinkError with the given code and message
func New(code ErrorCode, message string) *ModlinkError {
	return &ModlinkError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new ModlinkError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ModlinkError {
	return &ModlinkError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a ModlinkError
func Wrap(err error, code ErrorCode, message string) *ModlinkError {
	if err == nil {
		return nil
	}
	return &ModlinkError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ModlinkError {
	if err == nil {
		return nil
	}
	return &ModlinkError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *ModlinkError) WithDetail(key string, value interface{}) *ModlinkError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithTrace attaches a captured backtrace to the error
func (e *ModlinkError) WithTrace(bt *Backtrace) *ModlinkError {
	e.Trace = bt
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var merr *ModlinkError
	if errors.As(err, &merr) {
		return merr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a ModlinkError
func GetErrorCode(err error) ErrorCode {
	var merr *ModlinkError
	if errors.As(err, &merr) {
		return merr.Code
	}
	return ErrUnknown
}

// GetTrace returns the backtrace attached to an error, or nil
func GetTrace(err error) *Backtrace {
	var merr *ModlinkError
	if errors.As(err, &merr) {
		return merr.Trace
	}
	return nil
}

// IsUserCanceled reports whether err is a user cancellation. Retry wrappers
// must re-raise these unchanged.
func IsUserCanceled(err error) bool {
	return IsErrorCode(err, ErrUserCanceled)
}

// IsTemporary reports whether err is a transient condition the caller may
// retry at a higher level.
func IsTemporary(err error) bool {
	return IsErrorCode(err, ErrTemporary)
}

// IsProcessCanceled reports whether err means "not applicable right now".
func IsProcessCanceled(err error) bool {
	return IsErrorCode(err, ErrProcessCanceled)
}
