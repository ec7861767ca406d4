// Package pipeline provides lazy, pull-based iterators used for row sources,
// engine output and mutator chains.
//
// Pipelines are lazy: no work happens until values are pulled via Collect,
// Drain, ForEach or Iter. Each stage pulls from the previous stage on demand,
// which gives backpressure without explicit flow control.
//
// # Usage
//
//	src := pipeline.FromSlice(rows)
//	kept := pipeline.Filter(src, func(r *row.Row) bool { return r.Get("id") != nil })
//	out, err := pipeline.Collect(ctx, kept)
//
// An engine's Evaluate output is itself a pipeline, so engines chain:
//
//	rows, err := pipeline.Collect(ctx, first.Evaluate())
//	second := engine.New("load", cfg, first.AsSource(), ops)
package pipeline
