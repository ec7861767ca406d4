package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Run status values recorded on spans and metrics.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunContext holds observability state for one process run.
type RunContext struct {
	Process   string
	RunID     string
	StartTime time.Time
	Metrics   *Metrics
}

// NewRunContext creates a run context. A nil metrics skips metric recording.
func NewRunContext(process, runID string, metrics *Metrics) *RunContext {
	return &RunContext{
		Process:   process,
		RunID:     runID,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

type runContextKey struct{}

// WithRunContext stores rc in ctx.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFromContext retrieves the RunContext from ctx, or nil.
func RunContextFromContext(ctx context.Context) *RunContext {
	if rc, ok := ctx.Value(runContextKey{}).(*RunContext); ok {
		return rc
	}
	return nil
}

// Start opens the run span and records the run start.
func (rc *RunContext) Start(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := StartSpan(WithRunContext(ctx, rc), SpanRun)
	span.SetAttributes(
		attribute.String(AttrProcess, rc.Process),
		attribute.String(AttrRunID, rc.RunID),
	)
	rc.Metrics.RecordRunStart(ctx, rc.Process)
	return ctx, span
}

// Phase opens a child span for one phase of the run.
func (rc *RunContext) Phase(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, name)
	span.SetAttributes(attribute.String(AttrProcess, rc.Process))
	return ctx, span
}

// End closes the run span and records the run end.
func (rc *RunContext) End(ctx context.Context, span trace.Span, status string, input int64, err error) {
	duration := time.Since(rc.StartTime)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrRowsInput, input),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()
	rc.Metrics.RecordRunEnd(ctx, rc.Process, status, duration)
}

// Duration returns the elapsed time since the run started.
func (rc *RunContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}
