// Package logger provides structured logging for rowflow using zerolog.
//
// It supports JSON and console output, level configuration, and scoped
// loggers carrying the process, run id, component and operation fields
// that every engine log line uses.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("engine").WithProcess("orders", runID)
//	log.Info("rows flushed", logger.Fields("operation", "insert", "count", 500))
package logger
