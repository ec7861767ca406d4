package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
)

// Writer is the subset of *kafkago.Writer used by Publish.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// PublishConfig configures a Publish operation.
type PublishConfig struct {
	operation.DeferredConfig `yaml:",inline" mapstructure:",squash"`

	// Topic receives the messages.
	Topic string `yaml:"topic" mapstructure:"topic"`
	// KeyField names the row value used as message key. Empty publishes
	// without a key.
	KeyField string `yaml:"key_field" mapstructure:"key_field"`
	// Fields restricts the published values. Empty publishes every value.
	Fields []string `yaml:"fields" mapstructure:"fields"`
}

// Publish writes each flushed batch of rows to a topic as JSON messages.
type Publish struct {
	*operation.Deferred
	writer Writer
	cfg    PublishConfig
}

// NewPublish creates an operation publishing rows with w.
func NewPublish(w Writer, cfg PublishConfig) *Publish {
	cfg.ApplyDefaults()
	p := &Publish{writer: w, cfg: cfg}
	p.Deferred = operation.NewDeferred("publish("+cfg.Topic+")", cfg.DeferredConfig, p.publish)
	return p
}

// Wrap decorates the batch handler, for instance with a retry policy.
func (p *Publish) Wrap(fn func(operation.ProcessFunc) operation.ProcessFunc) *Publish {
	p.SetProcess(fn(p.publish))
	return p
}

func (p *Publish) Prepare(ctx context.Context) error {
	if p.writer == nil {
		return errors.MissingField(p.Name() + ".writer")
	}
	if p.cfg.Topic == "" {
		return errors.MissingField(p.Name() + ".topic")
	}
	return p.Deferred.Prepare(ctx)
}

func (p *Publish) publish(ctx context.Context, batch []*row.Row) error {
	msgs := make([]kafkago.Message, 0, len(batch))
	for _, r := range batch {
		if !r.IsNormal() {
			continue
		}
		msg, err := Encode(r, p.cfg.Topic, p.cfg.KeyField, p.cfg.Fields)
		if err != nil {
			return errors.Validation(err.Error()).WithCause(err)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return FromKafka(err, p.cfg.Topic)
	}
	p.Stats().Add("published", int64(len(msgs)))
	return nil
}
