package main

import (
	"github.com/kbukum/rowflow/config"
	"github.com/kbukum/rowflow/database"
	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/kafka"
	"github.com/kbukum/rowflow/redis"
	"github.com/kbukum/rowflow/resilience"
	"github.com/kbukum/rowflow/rowqueue"
	"github.com/kbukum/rowflow/source"
	"github.com/kbukum/rowflow/util"
	"github.com/kbukum/rowflow/validation"
	"github.com/kbukum/rowflow/version"
	"github.com/kbukum/rowflow/worker"
)

// JobConfig is the configuration of one rowflow job.
//
//	name: orders-import
//	input:
//	  path: ./orders.csv
//	transform:
//	  required: [id, sku]
//	  lowercase: [sku]
//	database:
//	  enabled: true
//	  dsn: ./orders.db
//	sink:
//	  table: orders
//	  batch_size: 500
type JobConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Engine    engine.Config    `yaml:"engine" mapstructure:"engine"`
	Input     source.CSVConfig `yaml:"input" mapstructure:"input"`
	Transform TransformConfig  `yaml:"transform" mapstructure:"transform"`
	Database  database.Config  `yaml:"database" mapstructure:"database"`
	Sink      SinkConfig       `yaml:"sink" mapstructure:"sink"`

	// Redis and Dedup enable de-duplication when Dedup.Fields is set.
	Redis redis.Config      `yaml:"redis" mapstructure:"redis"`
	Dedup redis.DedupConfig `yaml:"dedup" mapstructure:"dedup"`

	// Kafka and Publish forward inserted rows to a topic when Kafka is enabled.
	Kafka   kafka.Config        `yaml:"kafka" mapstructure:"kafka"`
	Publish kafka.PublishConfig `yaml:"publish" mapstructure:"publish"`

	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// TransformConfig describes the per-row clean-up applied before loading.
type TransformConfig struct {
	// Required fields must be present and non-empty; other rows are removed.
	Required []string `yaml:"required" mapstructure:"required"`
	// Lowercase and Uppercase fold the case of the named string values.
	Lowercase []string `yaml:"lowercase" mapstructure:"lowercase"`
	Uppercase []string `yaml:"uppercase" mapstructure:"uppercase"`
}

// SinkConfig configures the table the job loads into.
type SinkConfig struct {
	database.InsertConfig `yaml:",inline" mapstructure:",squash"`

	Table string `yaml:"table" mapstructure:"table"`
	// Schema is run once before the process starts, e.g. a CREATE TABLE
	// IF NOT EXISTS statement.
	Schema string                 `yaml:"schema" mapstructure:"schema"`
	Retry  resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// TelemetryConfig enables OTLP export of traces and run metrics.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// DedupEnabled reports whether rows are de-duplicated through Redis.
func (c *JobConfig) DedupEnabled() bool { return len(c.Dedup.Fields) > 0 }

// ApplyDefaults sets defaults for zero-valued fields.
func (c *JobConfig) ApplyDefaults() {
	c.Version = util.Coalesce(c.Version, version.Short())
	c.ServiceConfig.ApplyDefaults()

	if c.Engine.RowQueueKind == "" {
		c.Engine.RowQueueKind = rowqueue.KindList
	}
	if c.Engine.WorkerCount == 0 {
		c.Engine.WorkerCount = worker.DefaultSize()
	}
	c.Engine.ApplyDefaults()
	c.Input.ApplyDefaults()

	c.Database.Enabled = true
	c.Database.ApplyDefaults()
	c.Sink.ApplyDefaults()
	c.Sink.Retry.ApplyDefaults()

	if c.DedupEnabled() {
		c.Redis.Enabled = true
		if c.Name != "" {
			c.Dedup.Prefix = util.Coalesce(c.Dedup.Prefix, "rowflow:"+c.Name)
		}
	}
	c.Redis.ApplyDefaults()
	c.Dedup.ApplyDefaults()

	if c.Kafka.Enabled {
		c.Kafka.ApplyDefaults()
		c.Publish.ApplyDefaults()
	}

	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1.0
	}
}

// Validate checks every enabled section.
func (c *JobConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return section("engine", err)
	}
	if err := c.Input.Validate(); err != nil {
		return section("input", err)
	}
	if err := c.Database.Validate(); err != nil {
		return section("database", err)
	}
	if err := validation.New().
		Required("input.path", c.Input.Path).
		Required("sink.table", c.Sink.Table).
		Validate(); err != nil {
		return err
	}
	if err := c.Sink.DeferredConfig.Validate(); err != nil {
		return section("sink", err)
	}
	if c.DedupEnabled() {
		if err := c.Redis.Validate(); err != nil {
			return section("redis", err)
		}
		if err := c.Dedup.Validate(); err != nil {
			return section("dedup", err)
		}
	}
	if c.Kafka.Enabled {
		if err := c.Kafka.Validate(); err != nil {
			return section("kafka", err)
		}
		if err := validation.New().Required("publish.topic", c.Publish.Topic).Validate(); err != nil {
			return err
		}
	}
	return nil
}

func section(name string, err error) error {
	return errors.InvalidConfig(name, err.Error()).WithCause(err)
}
