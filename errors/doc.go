// Package errors provides the structured error types used across rowflow.
//
// Every failure that leaves a run (configuration validation, operation
// execution, lifecycle hooks, sources) is an *AppError carrying a
// machine-readable code, a retryable flag and details such as the failing
// operation and row. Errors raised on worker goroutines are never thrown
// across goroutines; they are appended to a Sink that the driver polls.
package errors
