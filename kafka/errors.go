package kafka

import (
	"strings"

	"github.com/kbukum/rowflow/errors"
)

var (
	connectionPatterns = []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no route to host",
		"network is unreachable",
		"broker not available",
		"leader not available",
		"connection closed",
		"dial tcp",
	}
	transientPatterns = []string{
		"temporary",
		"request timed out",
		"not enough replicas",
	}
	permanentPatterns = []string{
		"message too large",
		"invalid topic",
		"unknown topic",
		"authorization failed",
	}
)

func matches(err error, patterns []string) bool {
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

// IsConnectionError checks if a Kafka error is a connection-level error.
func IsConnectionError(err error) bool { return matches(err, connectionPatterns) }

// IsRetryableError determines if a Kafka error should trigger a retry.
func IsRetryableError(err error) bool {
	return IsConnectionError(err) || matches(err, transientPatterns)
}

// FromKafka converts a Kafka error to an AppError. Connection errors and
// transient broker errors are retryable.
func FromKafka(err error, topic string) *errors.AppError {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return errors.ConnectionFailed("kafka").WithCause(err).WithDetail("topic", topic)
	}
	appErr := errors.ExternalServiceError("kafka", err).WithDetail("topic", topic)
	appErr.Retryable = IsRetryableError(err) && !matches(err, permanentPatterns)
	return appErr
}
