// Package engine drives rows from a Source through a chain of operations on
// a pool of workers.
//
// A run goes through five phases:
//
//  1. Validate the configuration against the source and chain. Nothing
//     flows when validation fails.
//  2. Prepare: build the row queue, prepare the operation tree, start the
//     workers.
//  3. Stream: pull InputBufferSize rows at a time into the queue. While more
//     than ThrottlingLimit rows are in flight the input sleeps in
//     ThrottlingSleepResolution steps, at most ThrottlingMaxSleep per
//     episode, compacting between sleeps.
//  4. Drain: compact every MainLoopDelay until no row is in flight, the
//     context is cancelled or an error was recorded.
//  5. Finalize: stop the workers, run the Shutdown hooks on a context that
//     is not cancelled, log operation counters and emit the Finished rows
//     still tracked.
//
// Compaction releases rows that reached a terminal state. With KeepOrder it
// only releases the leading terminal rows so output follows input order.
// The tracked list lock is acquired with a LockTimeout bound; a pass that
// cannot get it is skipped and logged, and the list keeps growing until a
// later pass succeeds.
//
// Execute runs to completion and discards rows:
//
//	e := engine.New("orders", engine.DefaultConfig(), src, ops)
//	res, err := e.Execute(ctx)
//
// Evaluate streams completed rows lazily and can feed another engine:
//
//	next := engine.New("enrich", cfg, first.AsSource(), more)
//	rows, err := pipeline.Collect(ctx, next.Evaluate())
package engine
