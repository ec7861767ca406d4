package kafka

import (
	"context"
	"fmt"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/rowflow/component"
	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/util"
)

// Component owns the shared Kafka writer of a job and checks broker
// connectivity.
type Component struct {
	cfg    Config
	log    *logger.Logger
	mu     sync.Mutex
	writer *kafkago.Writer
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a Kafka component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: logger.OrGet(log, "kafka")}
}

// Config returns the effective configuration.
func (c *Component) Config() Config { return c.cfg }

// Writer returns the shared writer, or nil before Start.
func (c *Component) Writer() Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return nil
	}
	return c.writer
}

// Source creates a source reading topic with this component's settings.
func (c *Component) Source(topic string, cfg SourceConfig) *Source {
	return NewTopicSource(c.cfg, topic, cfg, c.log)
}

func (c *Component) Name() string { return "kafka" }

// Start validates the configuration and creates the writer. kafka-go
// connects lazily, so an unreachable broker surfaces on first write.
func (c *Component) Start(_ context.Context) error {
	if !c.cfg.Enabled {
		return errors.InvalidConfig("enabled", "kafka is disabled")
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	w, err := NewWriter(c.cfg, c.log)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
	c.log.Info("Kafka component started", logger.Fields("brokers", c.cfg.Brokers))
	return nil
}

// Stop flushes and closes the writer.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	w := c.writer
	c.writer = nil
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	m := CollectWriterMetrics(w.Stats())
	c.log.Info("Kafka component stopping", logger.Fields(
		"messages", m.Messages, "errors", m.Errors, "avg_write_ms", m.AvgWriteTime))
	return w.Close()
}

// Health dials the first broker and reads cluster metadata.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	if c.Writer() == nil {
		h.Status, h.Message = component.StatusUnhealthy, "kafka not started"
		return h
	}

	dialer, err := newDialer(c.cfg)
	if err != nil {
		h.Status, h.Message = component.StatusUnhealthy, fmt.Sprintf("dialer: %v", err)
		return h
	}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Brokers[0])
	if err != nil {
		h.Status, h.Message = component.StatusUnhealthy, fmt.Sprintf("broker unreachable: %v", err)
		return h
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		h.Status, h.Message = component.StatusDegraded, fmt.Sprintf("broker metadata: %v", err)
	}
	return h
}

func (c *Component) Describe() component.Description {
	details := fmt.Sprintf("brokers=%v compression=%s", c.cfg.Brokers, c.cfg.Compression)
	if c.cfg.GroupID != "" {
		details += " group=" + c.cfg.GroupID
	}
	if c.cfg.EnableSASL {
		details += fmt.Sprintf(" sasl=%s user=%s", c.cfg.SASLMechanism, util.MaskSecret(c.cfg.Username, 3))
	}
	return component.Description{Name: "Kafka", Type: "kafka", Details: details}
}
