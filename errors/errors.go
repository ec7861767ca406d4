package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type of a run.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the failed call can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context (operation, row, source...).
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Run lifecycle constructors ---

// Validation creates an AppError for an invalid process configuration.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// InvalidConfig creates a validation error for a single configuration field.
func InvalidConfig(field, reason string) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]any{"field": field},
	}
}

// MissingField creates a validation error for a missing required setting.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: fmt.Sprintf("missing required field: %s", field),
		Details: map[string]any{"field": field},
	}
}

// OperationFailed wraps an error raised by an operation while applying a row.
func OperationFailed(operation string, index int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeOperation, Message: fmt.Sprintf("operation %s failed", operation),
		Retryable: IsRetryable(cause),
		Details:   map[string]any{"operation": operation, "index": index},
		Cause:     cause,
	}
}

// PrepareFailed wraps an error raised by an operation's Prepare hook.
func PrepareFailed(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodePrepare, Message: fmt.Sprintf("operation %s failed to prepare", operation),
		Details: map[string]any{"operation": operation}, Cause: cause,
	}
}

// ShutdownFailed wraps an error raised by an operation's Shutdown hook.
func ShutdownFailed(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeShutdown, Message: fmt.Sprintf("operation %s failed to shut down", operation),
		Details: map[string]any{"operation": operation}, Cause: cause,
	}
}

// SourceFailed wraps an error raised by an input source.
func SourceFailed(source string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSource, Message: fmt.Sprintf("source %s failed", source),
		Retryable: IsRetryable(cause),
		Details:   map[string]any{"source": source}, Cause: cause,
	}
}

// Cancelled creates an AppError for a run stopped by its context.
func Cancelled(cause error) *AppError {
	return &AppError{Code: ErrCodeCancelled, Message: "run cancelled", Cause: cause}
}

// --- Infrastructure constructors ---

// ConnectionFailed creates an AppError for a failed connection to a service.
func ConnectionFailed(service string) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("unable to connect to %s", service),
		Retryable: true, Details: map[string]any{"service": service},
	}
}

// Timeout creates an AppError for a call that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		Retryable: true, Details: map[string]any{"operation": operation},
	}
}

// DatabaseError creates an AppError for a database error.
func DatabaseError(cause error) *AppError {
	return &AppError{
		Code: ErrCodeDatabaseError, Message: "database error",
		Retryable: true, Cause: cause,
	}
}

// ExternalServiceError creates an AppError for an error from an external service.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("%s error", service),
		Retryable: true, Details: map[string]any{"service": service}, Cause: cause,
	}
}

// Internal creates an AppError for an unexpected error.
func Internal(cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: "unexpected error", Cause: cause}
}

// --- Inspection helpers ---

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether any *AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsRetryable reports whether err is an *AppError marked retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}

// Is delegates to the standard library errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// Join delegates to the standard library errors.Join.
func Join(errs ...error) error { return stderrors.Join(errs...) }
