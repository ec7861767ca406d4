package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Run lifecycle errors
const (
	// ErrCodeValidation indicates the process configuration is invalid; no row flowed.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
	// ErrCodeOperation indicates an operation failed while applying a row.
	ErrCodeOperation ErrorCode = "OPERATION_FAILED"
	// ErrCodePrepare indicates an operation failed in its Prepare hook.
	ErrCodePrepare ErrorCode = "PREPARE_FAILED"
	// ErrCodeShutdown indicates an operation failed in its Shutdown hook.
	ErrCodeShutdown ErrorCode = "SHUTDOWN_FAILED"
	// ErrCodeSource indicates the input source failed while producing rows.
	ErrCodeSource ErrorCode = "SOURCE_FAILED"
	// ErrCodeCancelled indicates the run was cancelled before completion.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Infrastructure errors
const (
	// ErrCodeConnectionFailed indicates a failed connection to a backing service.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates a call timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeDatabaseError indicates a database error.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	// ErrCodeExternalService indicates an error from an external service (redis, kafka).
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	// ErrCodeInternal indicates an unexpected internal error, including recovered panics.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeConnectionFailed: true,
	ErrCodeTimeout:          true,
	ErrCodeDatabaseError:    true,
	ErrCodeExternalService:  true,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
