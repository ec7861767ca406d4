package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/rowflow/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string        `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string        `yaml:"service_version" mapstructure:"service_version"`
	Environment    string        `yaml:"environment" mapstructure:"environment"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded by process runs.
// All methods are no-ops on a nil receiver.
type Metrics struct {
	runsActive   metric.Int64UpDownCounter
	runsTotal    metric.Int64Counter
	runDuration  metric.Float64Histogram
	rowsInput    metric.Int64Counter
	rowsFinished metric.Int64Counter
	rowsRemoved  metric.Int64Counter
	rowsActive   metric.Int64UpDownCounter
	errorTotal   metric.Int64Counter
	wipePasses   metric.Int64Counter
	throttleWait metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.runsActive, err = meter.Int64UpDownCounter("rowflow.runs.active",
		metric.WithDescription("Number of runs in progress")); err != nil {
		return nil, fmt.Errorf("creating rowflow.runs.active: %w", err)
	}
	if m.runsTotal, err = meter.Int64Counter("rowflow.runs.total",
		metric.WithDescription("Completed runs by status")); err != nil {
		return nil, fmt.Errorf("creating rowflow.runs.total: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("rowflow.run.duration",
		metric.WithDescription("Duration of runs in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating rowflow.run.duration: %w", err)
	}
	if m.rowsInput, err = meter.Int64Counter("rowflow.rows.input",
		metric.WithDescription("Rows taken into a process")); err != nil {
		return nil, fmt.Errorf("creating rowflow.rows.input: %w", err)
	}
	if m.rowsFinished, err = meter.Int64Counter("rowflow.rows.finished",
		metric.WithDescription("Rows that completed their chain")); err != nil {
		return nil, fmt.Errorf("creating rowflow.rows.finished: %w", err)
	}
	if m.rowsRemoved, err = meter.Int64Counter("rowflow.rows.removed",
		metric.WithDescription("Rows removed by an operation")); err != nil {
		return nil, fmt.Errorf("creating rowflow.rows.removed: %w", err)
	}
	if m.rowsActive, err = meter.Int64UpDownCounter("rowflow.rows.active",
		metric.WithDescription("Rows in flight")); err != nil {
		return nil, fmt.Errorf("creating rowflow.rows.active: %w", err)
	}
	if m.errorTotal, err = meter.Int64Counter("rowflow.errors.total",
		metric.WithDescription("Errors by code")); err != nil {
		return nil, fmt.Errorf("creating rowflow.errors.total: %w", err)
	}
	if m.wipePasses, err = meter.Int64Counter("rowflow.wipe.passes",
		metric.WithDescription("Compaction passes by outcome")); err != nil {
		return nil, fmt.Errorf("creating rowflow.wipe.passes: %w", err)
	}
	if m.throttleWait, err = meter.Float64Histogram("rowflow.throttle.wait",
		metric.WithDescription("Time spent throttling input per episode"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating rowflow.throttle.wait: %w", err)
	}
	return &m, nil
}

func processAttr(process string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(AttrProcess, process))
}

// RecordRunStart increments the active run count.
func (m *Metrics) RecordRunStart(ctx context.Context, process string) {
	if m == nil {
		return
	}
	m.runsActive.Add(ctx, 1, processAttr(process))
}

// RecordRunEnd decrements active runs and records the completed run.
func (m *Metrics) RecordRunEnd(ctx context.Context, process, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsActive.Add(ctx, -1, processAttr(process))
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProcess, process),
		attribute.String(AttrStatus, status),
	))
	m.runDuration.Record(ctx, duration.Seconds(), processAttr(process))
}

// RecordInput records rows entering a process.
func (m *Metrics) RecordInput(ctx context.Context, process string, n int) {
	if m == nil {
		return
	}
	m.rowsInput.Add(ctx, int64(n), processAttr(process))
	m.rowsActive.Add(ctx, int64(n), processAttr(process))
}

// RecordFinished records a row completing its chain.
func (m *Metrics) RecordFinished(ctx context.Context, process string) {
	if m == nil {
		return
	}
	m.rowsFinished.Add(ctx, 1, processAttr(process))
	m.rowsActive.Add(ctx, -1, processAttr(process))
}

// RecordRemoved records a row removed by an operation.
func (m *Metrics) RecordRemoved(ctx context.Context, process string) {
	if m == nil {
		return
	}
	m.rowsRemoved.Add(ctx, 1, processAttr(process))
	m.rowsActive.Add(ctx, -1, processAttr(process))
}

// RecordError records an error by code.
func (m *Metrics) RecordError(ctx context.Context, process, code string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProcess, process),
		attribute.String(AttrErrorCode, code),
	))
}

// RecordWipe records one compaction pass. skipped is true when the tracked
// list lock could not be acquired in time.
func (m *Metrics) RecordWipe(ctx context.Context, process string, skipped bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if skipped {
		outcome = "skipped"
	}
	m.wipePasses.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProcess, process),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordThrottle records the time one throttling episode waited.
func (m *Metrics) RecordThrottle(ctx context.Context, process string, waited time.Duration) {
	if m == nil {
		return
	}
	m.throttleWait.Record(ctx, waited.Seconds(), processAttr(process))
}
