// Package resilience provides fault tolerance policies for operations that
// call external services.
//
// This package includes:
//   - CircuitBreaker: fails fast while a service is unhealthy
//   - Retry: retries failed calls with exponential backoff
//   - Bulkhead: limits concurrent calls
//   - RateLimiter: controls the call rate with a token bucket
//
// Each policy can decorate a per-row operation. Batch handlers of deferred
// operations are wrapped with RetryProcess and BreakerProcess:
//
//	lookup := resilience.WithRetry(enrich, resilience.DefaultRetryConfig())
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("db"))
//	insert := database.NewBatchInsert(db, "orders", cfg).
//		Wrap(func(p operation.ProcessFunc) operation.ProcessFunc {
//			return resilience.BreakerProcess(cb, resilience.RetryProcess(retryCfg, p))
//		})
package resilience
