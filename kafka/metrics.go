package kafka

import (
	kafkago "github.com/segmentio/kafka-go"
)

// WriterMetrics summarizes writer statistics.
type WriterMetrics struct {
	Writes       int64   `json:"writes"`
	Messages     int64   `json:"messages"`
	Bytes        int64   `json:"bytes"`
	Errors       int64   `json:"errors"`
	Retries      int64   `json:"retries"`
	AvgWriteTime float64 `json:"avg_write_time_ms"`
	MaxWriteTime float64 `json:"max_write_time_ms"`
}

// ReaderMetrics summarizes reader statistics.
type ReaderMetrics struct {
	Fetches  int64  `json:"fetches"`
	Messages int64  `json:"messages"`
	Bytes    int64  `json:"bytes"`
	Errors   int64  `json:"errors"`
	Offset   int64  `json:"offset"`
	Lag      int64  `json:"lag"`
	Topic    string `json:"topic"`
}

// CollectWriterMetrics extracts metrics from kafka-go writer stats.
func CollectWriterMetrics(stats kafkago.WriterStats) WriterMetrics {
	return WriterMetrics{
		Writes:       stats.Writes,
		Messages:     stats.Messages,
		Bytes:        stats.Bytes,
		Errors:       stats.Errors,
		Retries:      stats.Retries,
		AvgWriteTime: float64(stats.WriteTime.Avg) / 1e6,
		MaxWriteTime: float64(stats.WriteTime.Max) / 1e6,
	}
}

// CollectReaderMetrics extracts metrics from kafka-go reader stats.
func CollectReaderMetrics(stats kafkago.ReaderStats) ReaderMetrics {
	return ReaderMetrics{
		Fetches:  stats.Fetches,
		Messages: stats.Messages,
		Bytes:    stats.Bytes,
		Errors:   stats.Errors,
		Offset:   stats.Offset,
		Lag:      stats.Lag,
		Topic:    stats.Topic,
	}
}
