package engine

import (
	"fmt"
	"time"

	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/rowqueue"
	"github.com/kbukum/rowflow/validation"
	"github.com/kbukum/rowflow/worker"
)

const (
	DefaultInputBufferSize           = 1000
	DefaultMainLoopDelay             = 10 * time.Millisecond
	DefaultThrottlingLimit           = 10000
	DefaultThrottlingSleepResolution = 10 * time.Millisecond
	DefaultThrottlingMaxSleep        = 10 * time.Second
	DefaultLockTimeout               = 10 * time.Second

	// throttleBatchFactor is the minimum ratio between the throttling limit
	// and the batch size of any deferred operation. A lower limit could hold
	// the input while rows wait for a batch that never fills.
	throttleBatchFactor = 10
)

// Config configures a process run.
type Config struct {
	// RowQueueKind selects the queue implementation from the rowqueue registry.
	RowQueueKind rowqueue.Kind `yaml:"row_queue_kind" mapstructure:"row_queue_kind"`
	// QueueCapacity sizes the buffer of channel queues. Zero uses the queue default.
	QueueCapacity int `yaml:"queue_capacity" mapstructure:"queue_capacity" validate:"gte=0"`
	// WorkerCount is the number of goroutines applying operations.
	WorkerCount int `yaml:"worker_count" mapstructure:"worker_count"`
	// InputBufferSize is the number of rows pulled before they are enqueued.
	InputBufferSize int `yaml:"input_buffer_size" mapstructure:"input_buffer_size"`
	// MainLoopDelay is the compaction interval of the driver loop.
	MainLoopDelay time.Duration `yaml:"main_loop_delay" mapstructure:"main_loop_delay"`
	// ThrottlingLimit is the number of in-flight rows above which input pauses.
	ThrottlingLimit int `yaml:"throttling_limit" mapstructure:"throttling_limit"`
	// ThrottlingSleepResolution is the sleep step while throttled.
	ThrottlingSleepResolution time.Duration `yaml:"throttling_sleep_resolution" mapstructure:"throttling_sleep_resolution"`
	// ThrottlingMaxSleep caps one throttling episode.
	ThrottlingMaxSleep time.Duration `yaml:"throttling_max_sleep" mapstructure:"throttling_max_sleep"`
	// KeepOrder emits rows in input order.
	KeepOrder bool `yaml:"keep_order" mapstructure:"keep_order"`
	// LockTimeout bounds how long a compaction pass waits for the tracked list.
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// DefaultConfig returns a complete configuration: list queue, one worker per
// spare CPU, ordered output.
func DefaultConfig() Config {
	return Config{
		RowQueueKind:              rowqueue.KindList,
		WorkerCount:               worker.DefaultSize(),
		InputBufferSize:           DefaultInputBufferSize,
		MainLoopDelay:             DefaultMainLoopDelay,
		ThrottlingLimit:           DefaultThrottlingLimit,
		ThrottlingSleepResolution: DefaultThrottlingSleepResolution,
		ThrottlingMaxSleep:        DefaultThrottlingMaxSleep,
		KeepOrder:                 true,
		LockTimeout:               DefaultLockTimeout,
	}
}

// ApplyDefaults fills zero tuning values. The queue kind and worker count
// are left alone so a missing value is reported by Validate.
func (c *Config) ApplyDefaults() {
	if c.InputBufferSize == 0 {
		c.InputBufferSize = DefaultInputBufferSize
	}
	if c.MainLoopDelay == 0 {
		c.MainLoopDelay = DefaultMainLoopDelay
	}
	if c.ThrottlingLimit == 0 {
		c.ThrottlingLimit = DefaultThrottlingLimit
	}
	if c.ThrottlingSleepResolution == 0 {
		c.ThrottlingSleepResolution = DefaultThrottlingSleepResolution
	}
	if c.ThrottlingMaxSleep == 0 {
		c.ThrottlingMaxSleep = DefaultThrottlingMaxSleep
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
}

// Validate checks the configuration on its own.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	return c.rules(validation.New()).Validate()
}

func (c *Config) rules(v *validation.Validator) *validation.Validator {
	v.Required("row_queue_kind", string(c.RowQueueKind))
	if c.RowQueueKind != "" && !rowqueue.Registered(c.RowQueueKind) {
		v.AddError("row_queue_kind", fmt.Sprintf("unknown queue kind %q (registered: %v)", c.RowQueueKind, rowqueue.Kinds()))
	}
	return v.
		Positive("worker_count", c.WorkerCount).
		Positive("input_buffer_size", c.InputBufferSize).
		PositiveDuration("main_loop_delay", c.MainLoopDelay).
		Positive("throttling_limit", c.ThrottlingLimit).
		PositiveDuration("throttling_sleep_resolution", c.ThrottlingSleepResolution).
		PositiveDuration("throttling_max_sleep", c.ThrottlingMaxSleep).
		PositiveDuration("lock_timeout", c.LockTimeout)
}

// validateRun checks c against the process it will drive.
func (c *Config) validateRun(src Source, chain *operation.Chain) error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	v := c.rules(validation.New())
	v.NotNil("source", src != nil)
	for _, b := range chain.Batchers() {
		floor := throttleBatchFactor * b.BatchSize()
		v.Custom(c.ThrottlingLimit >= floor, "throttling_limit",
			fmt.Sprintf("must be at least %d (%dx batch size of %s)", floor, throttleBatchFactor, nameOf(b)))
	}
	return v.Validate()
}

func nameOf(v any) string {
	if op, ok := v.(operation.Operation); ok {
		return op.Name()
	}
	return fmt.Sprintf("%T", v)
}
