package database

import (
	stderrors "errors"
	"strings"

	"gorm.io/gorm"

	"github.com/kbukum/rowflow/errors"
)

var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"no route to host",
	"connection closed",
	"driver: bad connection",
	"invalid connection",
}

var transientPatterns = []string{
	"deadlock",
	"lock timeout",
	"database is locked",
	"too many connections",
}

func containsAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsConnectionError reports whether err looks like a lost connection.
func IsConnectionError(err error) bool {
	return containsAny(err, connectionPatterns)
}

// IsRetryableError reports whether retrying the statement may succeed.
func IsRetryableError(err error) bool {
	return IsConnectionError(err) || containsAny(err, transientPatterns)
}

// FromDatabase converts a database error to an AppError. Only connection
// and transient errors are retryable; constraint violations are not.
func FromDatabase(err error, resource string) *errors.AppError {
	if err == nil {
		return nil
	}
	appErr := errors.DatabaseError(err).WithDetail("resource", resource)
	switch {
	case stderrors.Is(err, gorm.ErrDuplicatedKey):
		appErr.Message = "duplicate key in " + resource
		appErr.Retryable = false
	case IsRetryableError(err):
		appErr.Retryable = true
	default:
		appErr.Retryable = false
	}
	return appErr
}
