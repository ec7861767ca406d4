// Package kafka reads and writes rowflow rows as Kafka messages with
// segmentio/kafka-go.
//
// Source reads a topic until it stays idle or a message limit is reached,
// decoding JSON object payloads into row values. Publish is a deferred
// operation writing each flushed batch with one WriteMessages call:
//
//	kc := kafka.NewComponent(cfg, log)
//	src := kc.Source("orders", kafka.SourceConfig{IdleTimeout: 10 * time.Second})
//	pub := kafka.NewPublish(kc.Writer(), kafka.PublishConfig{Topic: "orders.clean", KeyField: "order_id"})
//
// Reader and Writer are the kafka-go methods the package uses, so tests can
// substitute the in-memory versions from kafka/testutil.
package kafka
