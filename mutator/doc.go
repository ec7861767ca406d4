// Package mutator runs rows through a chain of stages on the goroutine that
// consumes them.
//
// It is the single-threaded counterpart of the engine: every stage wraps the
// lazy pipeline of the previous one, so a row moves forward only when the
// consumer pulls. Batching follows the same size-or-time policy as
// operation.Deferred but is evaluated at pull boundaries instead of on a
// timer.
//
//	chain := mutator.NewChain("load",
//	    mutator.NewFunc("trim", trim),
//	    mutator.NewBatched("insert", operation.DeferredConfig{BatchSize: 500}, insert).
//	        WithKey(func(r *row.Row) string { return r.String("customer_id") }),
//	)
//	err := chain.Run(ctx, pipeline.FromSlice(rows), nil)
//
// Heartbeat rows pass through every stage unmodified.
package mutator
