package mutator

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/testutil"
)

func nOf(r *row.Row) int {
	n, _ := r.Get("n").(int)
	return n
}

// fakeClock is advanced by the test between pulls.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func recordBatches(sizes *[]int) operation.ProcessFunc {
	return func(_ context.Context, batch []*row.Row) error {
		*sizes = append(*sizes, len(batch))
		return nil
	}
}

func TestFunc_AppliesAndDropsRemoved(t *testing.T) {
	double := NewFunc("double", func(_ context.Context, r *row.Row) error {
		r.Set("n", nOf(r)*2)
		return nil
	})
	odd := NewFilter("small", func(r *row.Row) bool { return nOf(r) < 6 })
	chain := NewChain("c", double, odd)

	out, err := pipeline.Collect(context.Background(), chain.Apply(pipeline.FromSlice(testutil.Rows(5))))
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.Ns(out); !slices.Equal(got, []int{0, 2, 4}) {
		t.Errorf("got %v, want [0 2 4]", got)
	}
	c := chain.Counters()
	if c["double"]["applied"] != 5 || c["small"]["removed"] != 2 {
		t.Errorf("unexpected counters %v", c)
	}
}

func TestFunc_ErrorCarriesIndex(t *testing.T) {
	fail := NewFunc("fail", func(_ context.Context, r *row.Row) error {
		if nOf(r) == 2 {
			return fmt.Errorf("bad row")
		}
		return nil
	})
	chain := NewChain("c", NewFunc("noop", func(context.Context, *row.Row) error { return nil }), fail)

	out, err := pipeline.Collect(context.Background(), chain.Apply(pipeline.FromSlice(testutil.Rows(5))))
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeOperation {
		t.Fatalf("expected operation error, got %v", err)
	}
	if appErr.Details["index"] != 1 || appErr.Details["operation"] != "fail" {
		t.Errorf("unexpected details %v", appErr.Details)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 rows before the error, got %d", len(out))
	}
}

func TestFunc_HeartbeatPassesUntouched(t *testing.T) {
	touched := 0
	m := NewFunc("touch", func(_ context.Context, r *row.Row) error {
		touched++
		r.Set("touched", true)
		return nil
	})
	rows := []*row.Row{row.NewHeartbeat(), row.New(nil)}

	out, err := pipeline.Collect(context.Background(), m.Mutate(pipeline.FromSlice(rows)))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || touched != 1 || out[0].Len() != 0 {
		t.Errorf("heartbeat should pass unmodified, touched=%d", touched)
	}
}

func TestFromOperation(t *testing.T) {
	upper := FromOperation(operation.NewFunc("mark", func(_ context.Context, r *row.Row) error {
		r.Set("marked", true)
		return nil
	}))
	out, err := pipeline.Collect(context.Background(), upper.Mutate(pipeline.FromSlice(testutil.Rows(2))))
	if err != nil || len(out) != 2 || out[1].Get("marked") != true {
		t.Fatalf("unexpected result %v %v", out, err)
	}

	parking := FromOperation(operation.NewFunc("park", func(context.Context, *row.Row) error { return operation.ErrParked }))
	_, err = pipeline.Collect(context.Background(), parking.Mutate(pipeline.FromSlice(testutil.Rows(1))))
	if !errors.HasCode(err, errors.ErrCodeValidation) {
		t.Errorf("parking operation should be rejected, got %v", err)
	}
}

func TestBatched_SizeRule(t *testing.T) {
	var sizes []int
	b := NewBatched("b", operation.DeferredConfig{BatchSize: 3, ForceFlush: time.Hour}, recordBatches(&sizes))

	out, err := pipeline.Collect(context.Background(), b.Mutate(pipeline.FromSlice(testutil.Rows(7))))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sizes, []int{3, 3, 1}) {
		t.Errorf("expected batches [3 3 1], got %v", sizes)
	}
	if got := testutil.Ns(out); !slices.Equal(got, []int{0, 1, 2, 3, 4, 5, 6}) {
		t.Errorf("rows out of order: %v", got)
	}
	if c := b.Counters(); c["flushes_size"] != 2 || c["flushes_final"] != 1 || c["flushed"] != 7 {
		t.Errorf("unexpected counters %v", c)
	}
}

func TestBatched_EmptyInputNeverFlushes(t *testing.T) {
	var sizes []int
	b := NewBatched("b", operation.DeferredConfig{BatchSize: 3}, recordBatches(&sizes))
	if _, err := pipeline.Collect(context.Background(), b.Mutate(pipeline.FromSlice([]*row.Row{}))); err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 0 {
		t.Errorf("expected no flush, got %v", sizes)
	}
}

func TestBatched_KeyModeNeverSplitsKeys(t *testing.T) {
	var batches [][]string
	keyOf := func(r *row.Row) string { return r.String("k") }
	b := NewBatched("b", operation.DeferredConfig{BatchSize: 2, ForceFlush: time.Hour},
		func(_ context.Context, batch []*row.Row) error {
			keys := make([]string, len(batch))
			for i, r := range batch {
				keys[i] = keyOf(r)
			}
			batches = append(batches, keys)
			return nil
		}).WithKey(keyOf)

	rows := testutil.RowsOf(
		map[string]any{"k": "a"}, map[string]any{"k": "a"}, map[string]any{"k": "b"},
		map[string]any{"k": "b"}, map[string]any{"k": "c"}, map[string]any{"k": "c"},
		map[string]any{"k": "d"},
	)
	if _, err := pipeline.Collect(context.Background(), b.Mutate(pipeline.FromSlice(rows))); err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a", "a", "b", "b"}, {"c", "c", "d"}}
	if len(batches) != len(want) {
		t.Fatalf("expected %d batches, got %v", len(want), batches)
	}
	for i := range want {
		if !slices.Equal(batches[i], want[i]) {
			t.Errorf("batch %d: got %v, want %v", i, batches[i], want[i])
		}
	}
}

func TestBatched_HeartbeatTriggersTimeFlush(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var sizes []int
	b := NewBatched("b", operation.DeferredConfig{BatchSize: 10, ForceFlush: time.Second}, recordBatches(&sizes))
	b.now = clock.now

	rows := append(testutil.Rows(2), row.NewHeartbeat())
	src := pipeline.Map(pipeline.FromSlice(rows), func(_ context.Context, r *row.Row) (*row.Row, error) {
		if r.IsHeartbeat() {
			clock.advance(2 * time.Second)
		}
		return r, nil
	})

	out, err := pipeline.Collect(context.Background(), b.Mutate(src))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sizes, []int{2}) {
		t.Errorf("expected one time flush of 2, got %v", sizes)
	}
	if len(out) != 3 || !out[2].IsHeartbeat() {
		t.Errorf("heartbeat should follow the batch it flushed, got %d rows", len(out))
	}
	if b.Counters()["flushes_time"] != 1 {
		t.Errorf("expected a time flush, got %v", b.Counters())
	}
}

func TestBatched_TimeRuleMeasuresIdleGap(t *testing.T) {
	tests := []struct {
		name  string
		gap   time.Duration
		sizes []int
	}{
		{"steady arrivals", 300 * time.Millisecond, []int{6}},
		{"idle gaps", 600 * time.Millisecond, []int{1, 1, 1, 1, 1, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(0, 0)}
			var sizes []int
			b := NewBatched("b", operation.DeferredConfig{BatchSize: 10, ForceFlush: 500 * time.Millisecond}, recordBatches(&sizes))
			b.now = clock.now

			src := pipeline.Map(pipeline.FromSlice(testutil.Rows(6)), func(_ context.Context, r *row.Row) (*row.Row, error) {
				clock.advance(tc.gap)
				return r, nil
			})
			out, err := pipeline.Collect(context.Background(), b.Mutate(src))
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(sizes, tc.sizes) {
				t.Errorf("expected batches %v, got %v", tc.sizes, sizes)
			}
			if got := testutil.Ns(out); !slices.Equal(got, []int{0, 1, 2, 3, 4, 5}) {
				t.Errorf("rows out of order: %v", got)
			}
		})
	}
}

func TestBatched_HeartbeatWithoutExpiryPassesFirst(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var sizes []int
	b := NewBatched("b", operation.DeferredConfig{BatchSize: 10, ForceFlush: time.Second}, recordBatches(&sizes))
	b.now = clock.now

	rows := append(testutil.Rows(2), row.NewHeartbeat())
	out, err := pipeline.Collect(context.Background(), b.Mutate(pipeline.FromSlice(rows)))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || !out[0].IsHeartbeat() {
		t.Errorf("heartbeat should not wait for the batch")
	}
	if !slices.Equal(sizes, []int{2}) {
		t.Errorf("expected the final flush only, got %v", sizes)
	}
}

func TestBatched_ProcessErrorStopsStream(t *testing.T) {
	b := NewBatched("b", operation.DeferredConfig{BatchSize: 2}, func(context.Context, []*row.Row) error {
		return fmt.Errorf("insert failed")
	})
	NewChain("c", b)

	out, err := pipeline.Collect(context.Background(), b.Mutate(pipeline.FromSlice(testutil.Rows(5))))
	if !errors.HasCode(err, errors.ErrCodeOperation) {
		t.Fatalf("expected operation error, got %v", err)
	}
	if len(out) != 0 {
		t.Errorf("no row of a failed batch should be emitted, got %d", len(out))
	}
}

func TestBatched_ProcessCanRemoveRows(t *testing.T) {
	b := NewBatched("dedup", operation.DeferredConfig{BatchSize: 4}, func(_ context.Context, batch []*row.Row) error {
		for _, r := range batch {
			if nOf(r)%2 == 1 {
				r.Remove()
			}
		}
		return nil
	})
	out, err := pipeline.Collect(context.Background(), b.Mutate(pipeline.FromSlice(testutil.Rows(6))))
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.Ns(out); !slices.Equal(got, []int{0, 2, 4}) {
		t.Errorf("got %v, want [0 2 4]", got)
	}
}

func TestChain_Run(t *testing.T) {
	var sizes []int
	chain := NewChain("load",
		NewFunc("inc", func(_ context.Context, r *row.Row) error {
			r.Set("n", nOf(r)+1)
			return nil
		}),
		NewBatched("batch", operation.DeferredConfig{BatchSize: 4}, recordBatches(&sizes)),
	).WithLogger(logger.NewNop())

	var got []int
	err := chain.Run(context.Background(), pipeline.FromSlice(testutil.Rows(10)), func(_ context.Context, r *row.Row) error {
		got = append(got, nOf(r))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 || got[0] != 1 || got[9] != 10 {
		t.Errorf("unexpected output %v", got)
	}
	if !slices.Equal(sizes, []int{4, 4, 2}) {
		t.Errorf("expected batches [4 4 2], got %v", sizes)
	}
}
