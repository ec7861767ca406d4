package main

import (
	"context"
	"io"
	"strings"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/rowflow/bootstrap"
	"github.com/kbukum/rowflow/database"
	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/kafka"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/observability"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/redis"
	"github.com/kbukum/rowflow/resilience"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/source"
	"github.com/kbukum/rowflow/util"
)

// Job wires a JobConfig into components and an engine, then runs it once.
type Job struct {
	cfg *JobConfig
	app *bootstrap.App[*JobConfig]

	db     *database.Component
	redis  *redis.Component
	kafka  *kafka.Component
	writer kafka.Writer

	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics *observability.Metrics
	engine  *engine.Engine
}

// JobOption customizes a Job, mostly to swap infrastructure in tests.
type JobOption func(*jobOptions)

type jobOptions struct {
	app    []bootstrap.Option
	writer kafka.Writer
}

// WithAppOptions passes options to the underlying bootstrap.App.
func WithAppOptions(opts ...bootstrap.Option) JobOption {
	return func(o *jobOptions) { o.app = append(o.app, opts...) }
}

// WithKafkaWriter publishes through w instead of a Kafka component.
func WithKafkaWriter(w kafka.Writer) JobOption {
	return func(o *jobOptions) { o.writer = w }
}

// NewJob creates the app and registers the components the config enables.
func NewJob(cfg *JobConfig, out io.Writer, opts ...JobOption) (*Job, error) {
	o := &jobOptions{}
	for _, opt := range opts {
		opt(o)
	}

	app, err := bootstrap.NewApp(cfg, append([]bootstrap.Option{bootstrap.WithOutput(out)}, o.app...)...)
	if err != nil {
		return nil, err
	}
	j := &Job{cfg: cfg, app: app, writer: o.writer}

	j.db = database.NewComponent(cfg.Database, app.Logger.WithComponent("database"))
	if err := app.RegisterComponent(j.db); err != nil {
		return nil, err
	}

	if cfg.DedupEnabled() {
		j.redis = redis.NewComponent(cfg.Redis, app.Logger.WithComponent("redis"))
		if err := app.RegisterComponent(j.redis); err != nil {
			return nil, err
		}
	}

	if cfg.Kafka.Enabled && j.writer == nil {
		j.kafka = kafka.NewComponent(cfg.Kafka, app.Logger.WithComponent("kafka"))
		if err := app.RegisterComponent(j.kafka); err != nil {
			return nil, err
		}
	}

	if cfg.Telemetry.Enabled {
		app.OnStart(j.startTelemetry)
		app.OnStop(j.stopTelemetry)
	}
	app.OnConfigure(j.configure)
	return j, nil
}

// App returns the application running the job.
func (j *Job) App() *bootstrap.App[*JobConfig] { return j.app }

// Engine returns the engine, or nil before the configure phase.
func (j *Job) Engine() *engine.Engine { return j.engine }

// Run executes the job and returns the result of its process run.
func (j *Job) Run(ctx context.Context) (*engine.Result, error) {
	var res *engine.Result
	err := j.app.RunTask(ctx, func(ctx context.Context) error {
		var err error
		res, err = j.engine.Execute(ctx)
		j.app.Summary.TrackRun(j.engine.Name(), res)
		if err != nil {
			return err
		}
		if res.Cancelled {
			return errors.Cancelled(ctx.Err())
		}
		return nil
	})
	return res, err
}

func (j *Job) configure(ctx context.Context, app *bootstrap.App[*JobConfig]) error {
	if j.cfg.Sink.Schema != "" {
		if err := j.db.DB().Exec(ctx, j.cfg.Sink.Schema); err != nil {
			return err
		}
		app.Logger.Debug("Sink schema applied", logger.Fields("table", j.cfg.Sink.Table))
	}

	if j.kafka != nil {
		j.writer = j.kafka.Writer()
	}

	opts := []engine.Option{engine.WithLogger(app.Logger.WithComponent("engine"))}
	if j.metrics != nil {
		opts = append(opts, engine.WithMetrics(j.metrics))
	}
	src := source.NewCSV(j.cfg.Input.Path, j.cfg.Input)
	j.engine = engine.New(j.cfg.Name, j.cfg.Engine, src, j.operations(app.Logger), opts...)
	return nil
}

// operations builds the chain: trim, validate and normalize, dedup, insert,
// publish.
func (j *Job) operations(log *logger.Logger) []operation.Operation {
	t := j.cfg.Transform
	ops := []operation.Operation{
		operation.NewFunc("trim", trimValues),
		&operation.Group{
			Label: "validate",
			If:    hasFields(t.Required),
			Then:  []operation.Operation{operation.NewFunc("normalize", foldCase(t.Lowercase, t.Uppercase))},
			Else:  []operation.Operation{operation.NewFilter("reject", func(*row.Row) bool { return false })},
		},
	}

	if j.redis != nil {
		ops = append(ops, redis.NewDedup(j.redis.Client(), j.cfg.Dedup))
	}

	retry := j.cfg.Sink.Retry
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("Batch insert retry", logger.Fields(
			"attempt", attempt, "backoff", backoff.String(), logger.FieldError, err.Error()))
	}
	insert := database.NewBatchInsert(j.db.DB(), j.cfg.Sink.Table, j.cfg.Sink.InsertConfig).
		Wrap(func(p operation.ProcessFunc) operation.ProcessFunc {
			return resilience.RetryProcess(retry, p)
		})
	ops = append(ops, insert)

	if j.writer != nil {
		ops = append(ops, kafka.NewPublish(j.writer, j.cfg.Publish).
			Wrap(func(p operation.ProcessFunc) operation.ProcessFunc {
				return resilience.RetryProcess(resilience.DefaultRetryConfig(), p)
			}))
	}
	return ops
}

func (j *Job) startTelemetry(ctx context.Context) error {
	base := j.cfg.GetServiceConfig()
	tcfg := observability.TracerConfig{
		ServiceName:    base.Name,
		ServiceVersion: base.Version,
		Environment:    base.Environment,
		Endpoint:       j.cfg.Telemetry.Endpoint,
		Insecure:       j.cfg.Telemetry.Insecure,
		SampleRate:     j.cfg.Telemetry.SampleRate,
	}
	tp, err := observability.InitTracer(ctx, &tcfg)
	if err != nil {
		return err
	}
	j.tracer = tp

	mcfg := observability.DefaultMeterConfig(base.Name)
	mcfg.ServiceVersion = base.Version
	mcfg.Environment = base.Environment
	mcfg.Endpoint = j.cfg.Telemetry.Endpoint
	mcfg.Insecure = j.cfg.Telemetry.Insecure
	mp, err := observability.InitMeter(ctx, &mcfg)
	if err != nil {
		return err
	}
	j.meter = mp

	j.metrics, err = observability.NewMetrics(observability.Meter("rowflow"))
	return err
}

func (j *Job) stopTelemetry(ctx context.Context) error {
	var errs []error
	if j.tracer != nil {
		errs = append(errs, j.tracer.Shutdown(ctx))
	}
	if j.meter != nil {
		errs = append(errs, j.meter.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// trimValues trims string values, strips control characters and drops the
// values left empty.
func trimValues(_ context.Context, r *row.Row) error {
	for k, v := range r.Values() {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = util.SanitizeString(s); s == "" {
			r.Delete(k)
		} else {
			r.Set(k, s)
		}
	}
	return nil
}

func hasFields(fields []string) operation.Predicate {
	return func(r *row.Row) bool {
		for _, f := range fields {
			v, ok := r.Lookup(f)
			if !ok || v == nil || v == "" {
				return false
			}
		}
		return true
	}
}

func foldCase(lower, upper []string) func(context.Context, *row.Row) error {
	return func(_ context.Context, r *row.Row) error {
		for _, f := range lower {
			if s, ok := r.Get(f).(string); ok {
				r.Set(f, strings.ToLower(s))
			}
		}
		for _, f := range upper {
			if s, ok := r.Get(f).(string); ok {
				r.Set(f, strings.ToUpper(s))
			}
		}
		return nil
	}
}
