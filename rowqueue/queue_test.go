package rowqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/row"
)

func allKinds(t *testing.T) map[Kind]Queue {
	t.Helper()
	out := make(map[Kind]Queue)
	for _, k := range []Kind{KindList, KindChannel} {
		q, err := New(k, Options{Capacity: 4096})
		if err != nil {
			t.Fatal(err)
		}
		out[k] = q
	}
	return out
}

func rows(n int) []*row.Row {
	out := make([]*row.Row, n)
	for i := range out {
		out[i] = row.New(nil)
		out[i].Seq = int64(i)
	}
	return out
}

func TestQueue_FIFO(t *testing.T) {
	for kind, q := range allKinds(t) {
		t.Run(string(kind), func(t *testing.T) {
			in := rows(5)
			q.Add(in[0])
			q.AddMany(in[1:])
			q.Signal()

			if q.Len() != 5 {
				t.Fatalf("expected 5 waiting rows, got %d", q.Len())
			}
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				r, ok := q.Take(ctx)
				if !ok || r.Seq != int64(i) {
					t.Fatalf("take %d: got %v %v", i, r, ok)
				}
			}
		})
	}
}

func TestQueue_TakeCancelled(t *testing.T) {
	for kind, q := range allKinds(t) {
		t.Run(string(kind), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			if _, ok := q.Take(ctx); ok {
				t.Fatal("empty queue should not yield")
			}
		})
	}
}

func TestQueue_CloseReleasesConsumers(t *testing.T) {
	for kind, q := range allKinds(t) {
		t.Run(string(kind), func(t *testing.T) {
			done := make(chan struct{})
			go func() {
				defer close(done)
				for range q.All(context.Background()) {
				}
			}()
			time.Sleep(10 * time.Millisecond)
			q.Close()
			q.Close()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("consumer not released by Close")
			}
			if _, ok := q.Take(context.Background()); ok {
				t.Error("closed queue should not yield")
			}
		})
	}
}

func TestQueue_BulkSignalWakesAllConsumers(t *testing.T) {
	for kind, q := range allKinds(t) {
		t.Run(string(kind), func(t *testing.T) {
			const consumers, total = 4, 1000
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var taken atomic.Int64
			seen := make([]atomic.Int32, total)
			var wg sync.WaitGroup
			for i := 0; i < consumers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for r := range q.All(ctx) {
						seen[r.Seq].Add(1)
						if taken.Add(1) == total {
							cancel()
						}
					}
				}()
			}

			q.AddMany(rows(total))
			q.Signal()

			wg.Wait()
			for i := range seen {
				if n := seen[i].Load(); n != 1 {
					t.Fatalf("row %d taken %d times", i, n)
				}
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	if _, err := New("missing", Options{}); !errors.HasCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected validation error for unknown kind, got %v", err)
	}
	if !Registered(KindList) || !Registered(KindChannel) {
		t.Error("built-in kinds should be registered")
	}

	Register("custom", func(Options) Queue { return NewList() })
	if q, err := New("custom", Options{}); err != nil || q == nil {
		t.Errorf("custom kind should build, got %v", err)
	}
	kinds := Kinds()
	if len(kinds) < 3 || kinds[0] != KindChannel {
		t.Errorf("expected sorted kinds, got %v", kinds)
	}
}

func TestList_CompactsConsumedPrefix(t *testing.T) {
	q := NewList()
	q.AddMany(rows(3 * compactAt))
	ctx := context.Background()
	for i := 0; i < 2*compactAt; i++ {
		if _, ok := q.Take(ctx); !ok {
			t.Fatal("expected row")
		}
	}
	if q.head >= compactAt {
		t.Errorf("expected compaction, head=%d", q.head)
	}
	if q.Len() != compactAt {
		t.Errorf("expected %d waiting rows, got %d", compactAt, q.Len())
	}
	r, _ := q.Take(ctx)
	if r.Seq != int64(2*compactAt) {
		t.Errorf("order broken after compaction, got seq %d", r.Seq)
	}
}

func TestChannel_SpillsWhenFull(t *testing.T) {
	q := NewChannel(2)
	added := make(chan struct{})
	go func() {
		q.AddMany(rows(5))
		q.Add(row.New(nil))
		close(added)
	}()
	select {
	case <-added:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full channel")
	}
	if q.Len() != 6 || q.Spilled() != 4 {
		t.Fatalf("expected 6 waiting rows with 4 spilled, got len=%d spilled=%d", q.Len(), q.Spilled())
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r, ok := q.Take(ctx)
		if !ok || r.Seq != int64(i) {
			t.Fatalf("take %d: expected seq %d, got %v ok=%v", i, i, r, ok)
		}
	}
	if q.Spilled() != 0 {
		t.Errorf("overflow should be drained, got %d", q.Spilled())
	}
	if _, ok := q.Take(ctx); !ok {
		t.Error("expected last row")
	}
}

func TestChannel_ConsumerReenqueues(t *testing.T) {
	q := NewChannel(4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const fanout = 8
	var done atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range q.All(ctx) {
				if r.Tag == "" {
					for i := 0; i < fanout; i++ {
						child := row.New(nil)
						child.Tag = "child"
						q.Add(child)
					}
				}
				if done.Add(1) == 4*(fanout+1) {
					q.Close()
				}
			}
		}()
	}
	q.AddMany(rows(4))
	wg.Wait()
	if ctx.Err() != nil {
		t.Fatalf("consumers stalled after %d rows", done.Load())
	}
}
