// Package observability provides OpenTelemetry tracing and metrics for
// process runs.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("rowflow"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//	metrics, err := observability.NewMetrics(observability.Meter("rowflow"))
//
// An engine given metrics records rows in, finished, removed and active,
// errors by code, compaction passes and throttling waits. Each run opens a
// rowflow.run span with one child span per phase.
package observability
