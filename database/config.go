package database

import (
	"fmt"
	"time"

	"github.com/kbukum/rowflow/validation"
)

// Drivers supported by Open.
var Drivers = []string{"sqlite"}

// Config holds database connection configuration.
type Config struct {
	// Enabled controls whether the job uses a database.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Driver selects the gorm dialector. Defaults to "sqlite".
	Driver string `yaml:"driver" mapstructure:"driver"`

	// DSN is the connection string, a file path or ":memory:" for sqlite.
	DSN string `yaml:"dsn" mapstructure:"dsn"`

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`

	// MaxIdleConns sets the maximum number of idle connections in the pool.
	MaxIdleConns int `yaml:"max_idle_conns" mapstructure:"max_idle_conns" validate:"gte=0"`

	// ConnMaxLifetime is the maximum time a connection may be reused.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`

	// MaxRetries is the number of connection attempts before giving up.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`

	// SlowQueryThreshold is the duration above which queries are logged as slow.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"`

	// LogLevel is the gorm log level: silent, error, warn or info.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	return validation.New().
		Required("dsn", c.DSN).
		OneOf("driver", c.Driver, Drivers).
		OneOf("log_level", c.LogLevel, []string{"silent", "error", "warn", "info"}).
		Custom(c.MaxIdleConns <= c.MaxOpenConns, "max_idle_conns",
			fmt.Sprintf("(%d) must be <= max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)).
		Validate()
}
