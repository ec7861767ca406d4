package kafka

import (
	"context"
	stderrors "errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// DefaultIdleTimeout ends a run when no message arrived for this long.
const DefaultIdleTimeout = 5 * time.Second

// Reader is the subset of *kafkago.Reader used by Source.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// SourceConfig configures a Source.
type SourceConfig struct {
	// MaxMessages ends the run after this many messages. 0 is unbounded.
	MaxMessages int `yaml:"max_messages" mapstructure:"max_messages" validate:"gte=0"`
	// IdleTimeout ends the run when no message arrives for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// Metadata adds key, topic, partition and offset values to each row.
	Metadata bool `yaml:"metadata" mapstructure:"metadata"`
	// Commit commits the offsets of every read message once the input is
	// exhausted. Requires a consumer group.
	Commit bool `yaml:"commit" mapstructure:"commit"`
}

// ApplyDefaults fills zero values.
func (c *SourceConfig) ApplyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
}

// Source reads a topic as rows. Each run opens a new reader and stops when
// MaxMessages were read or the topic stayed idle for IdleTimeout.
type Source struct {
	name string
	open func() (Reader, error)
	cfg  SourceConfig
	log  *logger.Logger
}

var _ engine.Source = (*Source)(nil)

// NewSource creates a source reading messages from readers returned by open.
func NewSource(name string, open func() (Reader, error), cfg SourceConfig) *Source {
	cfg.ApplyDefaults()
	return &Source{name: name, open: open, cfg: cfg, log: logger.Get("kafka")}
}

// NewTopicSource creates a source reading topic with a kafka-go reader
// built from cfg. Offsets are committed when cfg has a consumer group.
func NewTopicSource(cfg Config, topic string, scfg SourceConfig, log *logger.Logger) *Source {
	scfg.Commit = scfg.Commit || cfg.GroupID != ""
	s := NewSource("kafka("+topic+")", func() (Reader, error) {
		return NewReader(cfg, topic, log)
	}, scfg)
	s.log = logger.OrGet(log, "kafka")
	return s
}

func (s *Source) Name() string { return s.name }

func (s *Source) Rows(_ context.Context) pipeline.Iterator[*row.Row] {
	return &sourceIter{src: s}
}

type sourceIter struct {
	src     *Source
	reader  Reader
	read    int
	pending []kafkago.Message
	done    bool
}

func (it *sourceIter) Next(ctx context.Context) (*row.Row, bool, error) {
	if it.done {
		return nil, false, nil
	}
	if it.reader == nil {
		r, err := it.src.open()
		if err != nil {
			it.done = true
			return nil, false, err
		}
		it.reader = r
	}
	if limit := it.src.cfg.MaxMessages; limit > 0 && it.read >= limit {
		return nil, false, it.finish(ctx)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, it.src.cfg.IdleTimeout)
	msg, err := it.reader.FetchMessage(fetchCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			it.done = true
			return nil, false, ctx.Err()
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			it.src.log.Debug("Topic idle, ending input", logger.Fields(logger.FieldCount, it.read))
			return nil, false, it.finish(ctx)
		}
		it.done = true
		return nil, false, FromKafka(err, msg.Topic)
	}

	it.read++
	if it.src.cfg.Commit {
		it.pending = append(it.pending, msg)
	}
	return Decode(msg, it.src.cfg.Metadata), true, nil
}

func (it *sourceIter) finish(ctx context.Context) error {
	it.done = true
	if len(it.pending) == 0 {
		return nil
	}
	pending := it.pending
	it.pending = nil
	if err := it.reader.CommitMessages(ctx, pending...); err != nil {
		return FromKafka(err, pending[0].Topic)
	}
	return nil
}

func (it *sourceIter) Close() error {
	it.done = true
	if it.reader == nil {
		return nil
	}
	r := it.reader
	it.reader = nil
	if kr, ok := r.(*kafkago.Reader); ok {
		m := CollectReaderMetrics(kr.Stats())
		it.src.log.Info("Kafka reader closed", logger.Fields("topic", m.Topic, "messages", m.Messages, "lag", m.Lag))
	}
	return r.Close()
}
