// Package testutil provides in-memory kafka.Reader and kafka.Writer
// implementations for tests.
//
//	reader := testutil.NewReader("orders", msgs...)
//	src := kafka.NewSource("orders", reader.Open(), kafka.SourceConfig{IdleTimeout: 50 * time.Millisecond})
//	writer := &testutil.Writer{}
//	pub := kafka.NewPublish(writer, kafka.PublishConfig{Topic: "out"})
package testutil
