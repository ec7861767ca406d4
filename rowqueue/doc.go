// Package rowqueue provides the thread-safe FIFO that hands rows from a
// process to its workers.
//
// Implementations are chosen by Kind through a small registry:
//
//	q, err := rowqueue.New(rowqueue.KindList, rowqueue.Options{})
//	q.AddMany(buffer) // no wakeups
//	q.Signal()        // one wakeup, passed on by consumers while rows remain
//	for r := range q.All(ctx) { ... }
package rowqueue
