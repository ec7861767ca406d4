package kafka

import (
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
)

// NewWriter builds a kafka-go writer for cfg. Messages carry their topic.
func NewWriter(cfg Config, log *logger.Logger) (*kafkago.Writer, error) {
	cfg.ApplyDefaults()
	log = logger.OrGet(log, "kafka")

	transport := &kafkago.Transport{
		DialTimeout: cfg.DialTimeout,
		IdleTimeout: cfg.IdleTimeout,
		MetadataTTL: cfg.MetadataTTL,
	}
	tc, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	transport.TLS = tc
	if cfg.EnableSASL {
		m, err := buildSASLMechanism(cfg)
		if err != nil {
			return nil, err
		}
		transport.SASL = m
	}

	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Transport:    transport,
		Balancer:     &kafkago.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
		Compression:  resolveCompression(cfg.Compression),
		WriteTimeout: cfg.WriteTimeout,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...any) {
			log.Error("writer: "+fmt.Sprintf(msg, args...))
		}),
	}, nil
}

// NewReader builds a kafka-go reader of topic for cfg.
func NewReader(cfg Config, topic string, log *logger.Logger) (*kafkago.Reader, error) {
	cfg.ApplyDefaults()
	log = logger.OrGet(log, "kafka")

	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           cfg.GroupID,
		Dialer:            dialer,
		StartOffset:       kafkago.FirstOffset,
		MinBytes:          1,
		MaxBytes:          10e6,
		ReadBatchTimeout:  cfg.ReadTimeout,
		SessionTimeout:    cfg.SessionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...any) {
			log.Error("reader: "+fmt.Sprintf(msg, args...), logger.Fields("topic", topic, "group_id", cfg.GroupID))
		}),
	}), nil
}

func newDialer(cfg Config) (*kafkago.Dialer, error) {
	dialer := &kafkago.Dialer{
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}
	tc, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	dialer.TLS = tc
	if cfg.EnableSASL {
		m, err := buildSASLMechanism(cfg)
		if err != nil {
			return nil, err
		}
		dialer.SASLMechanism = m
	}
	return dialer, nil
}

func buildSASLMechanism(cfg Config) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, errors.InvalidConfig("sasl_mechanism", "unsupported: "+cfg.SASLMechanism)
	}
}

func resolveCompression(name string) kafkago.Compression {
	switch name {
	case "gzip":
		return kafkago.Gzip
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	case "none":
		return 0
	default:
		return kafkago.Snappy
	}
}
