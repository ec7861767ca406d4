package testutil

import (
	"context"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/rowflow/kafka"
)

// Writer records written messages in memory.
type Writer struct {
	// Err, when set, fails every write.
	Err error

	mu       sync.Mutex
	messages []kafkago.Message
	writes   int
	closed   bool
}

var _ kafka.Writer = (*Writer)(nil)

// WriteMessages records msgs, or returns Err.
func (w *Writer) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.writes++
	w.messages = append(w.messages, msgs...)
	return nil
}

// Messages returns all recorded messages.
func (w *Writer) Messages() []kafkago.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafkago.Message(nil), w.messages...)
}

// Writes returns the number of successful WriteMessages calls.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Closed reports whether Close was called.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Reader serves queued messages and then blocks until the fetch context
// is done, like a caught-up consumer.
type Reader struct {
	// Err, when set, is returned once the queue is drained.
	Err error

	mu        sync.Mutex
	queue     []kafkago.Message
	committed []kafkago.Message
	closed    bool
}

var _ kafka.Reader = (*Reader)(nil)

// NewReader creates a reader serving msgs in order. Offsets are assigned
// from their position when unset.
func NewReader(topic string, msgs ...kafkago.Message) *Reader {
	r := &Reader{}
	for i, m := range msgs {
		if m.Topic == "" {
			m.Topic = topic
		}
		if m.Offset == 0 {
			m.Offset = int64(i)
		}
		r.queue = append(r.queue, m)
	}
	return r
}

// Feed appends messages to the queue.
func (r *Reader) Feed(msgs ...kafkago.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, msgs...)
}

func (r *Reader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	err := r.Err
	r.mu.Unlock()
	if err != nil {
		return kafkago.Message{}, err
	}
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *Reader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

// Committed returns the committed messages.
func (r *Reader) Committed() []kafkago.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafkago.Message(nil), r.committed...)
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *Reader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Open returns an opener for kafka.NewSource handing out r.
func (r *Reader) Open() func() (kafka.Reader, error) {
	return func() (kafka.Reader, error) { return r, nil }
}
