package logger

import (
	"time"
)

// Standard field key constants for structured logging.
const (
	FieldService        = "service"
	FieldComponent      = "component"
	FieldProcess        = "process"
	FieldRunID          = "run_id"
	FieldOperation      = "operation"
	FieldOperationIndex = "op_index"
	FieldRowSeq         = "row_seq"
	FieldWorker         = "worker"
	FieldPhase          = "phase"
	FieldCount          = "count"
	FieldError          = "error"
	FieldDuration       = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("flushed", logger.Fields("operation", "insert", "count", 42))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// DurationFields creates fields for a timed phase.
func DurationFields(phase string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldPhase:    phase,
		FieldDuration: d.Milliseconds(),
	}
}
