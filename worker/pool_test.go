package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/rowqueue"
	"github.com/kbukum/rowflow/testutil"
)

type harness struct {
	pool   *Pool
	queue  rowqueue.Queue
	host   *testutil.Host
	sink   *errors.Sink
	cancel context.CancelFunc
}

func startPool(t *testing.T, size int, ops ...operation.Operation) *harness {
	t.Helper()
	q := rowqueue.NewList()
	host := &testutil.Host{}
	host.OnResume = func(rows ...*row.Row) {
		for _, r := range rows {
			if r.IsNormal() {
				q.Add(r)
			}
		}
	}
	sink := &errors.Sink{}
	chain := operation.NewChain("test", ops...)

	ctx, cancel := context.WithCancel(operation.WithHost(context.Background(), host))
	lc := operation.NewLifecycle(chain, logger.NewNop())
	if err := lc.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	p := New(size, q, chain, host, sink, logger.NewNop())
	p.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Close()
		p.Wait()
		_ = lc.Shutdown(context.Background())
	})
	return &harness{pool: p, queue: q, host: host, sink: sink, cancel: cancel}
}

func (h *harness) feed(rows []*row.Row) {
	h.queue.AddMany(rows)
	h.queue.Signal()
}

func settled(rows []*row.Row) func() bool {
	return func() bool {
		for _, r := range rows {
			if r.IsNormal() {
				return false
			}
		}
		return true
	}
}

func TestDefaultSize(t *testing.T) {
	if DefaultSize() < 1 {
		t.Fatal("default size must be at least one")
	}
	if New(0, nil, nil, nil, nil, logger.NewNop()).Size() != DefaultSize() {
		t.Error("zero size should use the default")
	}
}

func TestPool_FinishesEveryRowOnce(t *testing.T) {
	a, b := testutil.NewRecorder("a"), testutil.NewRecorder("b")
	h := startPool(t, 4, a, b)

	rows := testutil.Rows(200)
	h.feed(rows)
	testutil.T(t).Eventually(2*time.Second, settled(rows))

	for _, rec := range []*testutil.Recorder{a, b} {
		counts := rec.Count()
		if len(counts) != len(rows) {
			t.Fatalf("%s applied to %d rows, want %d", rec.Name(), len(counts), len(rows))
		}
		for id, n := range counts {
			if n != 1 {
				t.Fatalf("%s applied %d times to row %s", rec.Name(), n, id)
			}
		}
	}
	if h.host.Finished.Load() != 200 || h.pool.Stats().Finished != 200 {
		t.Errorf("expected 200 finished rows, host=%d pool=%d", h.host.Finished.Load(), h.pool.Stats().Finished)
	}
}

func TestPool_HeartbeatSkipsOperations(t *testing.T) {
	rec := testutil.NewRecorder("rec")
	h := startPool(t, 1, rec)

	hb := row.NewHeartbeat()
	h.feed([]*row.Row{hb})
	testutil.T(t).Eventually(time.Second, settled([]*row.Row{hb}))

	if hb.State() != row.Finished {
		t.Errorf("expected heartbeat Finished, got %s", hb.State())
	}
	if len(rec.Seen()) != 0 {
		t.Error("heartbeat must not be applied")
	}
}

func TestPool_ErrorAbortsOnlyThatRow(t *testing.T) {
	after := testutil.NewRecorder("after")
	failing := &testutil.FailOn{Label: "explode", When: func(r *row.Row) bool { return r.Seq == 3 }}
	h := startPool(t, 2, failing, after)

	rows := testutil.Rows(6)
	h.feed(rows)
	testutil.T(t).Eventually(time.Second, func() bool { return h.host.Finished.Load() == 5 })

	if rows[3].State() != row.Normal {
		t.Errorf("failed row should stay Normal, got %s", rows[3].State())
	}
	if len(after.Seen()) != 5 {
		t.Errorf("expected 5 rows past the failing step, got %d", len(after.Seen()))
	}
	if h.sink.Len() != 1 {
		t.Fatalf("expected 1 error, got %d", h.sink.Len())
	}
	appErr, ok := errors.AsAppError(h.sink.Errors()[0])
	if !ok || appErr.Code != errors.ErrCodeOperation {
		t.Fatalf("expected OPERATION_FAILED, got %v", h.sink.Errors()[0])
	}
	if appErr.Details["row_seq"] != int64(3) || appErr.Details["index"] != 0 {
		t.Errorf("unexpected details %v", appErr.Details)
	}
	if !strings.Contains(appErr.Details["step"].(string), "explode") {
		t.Errorf("expected step description, got %v", appErr.Details["step"])
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	failing := &testutil.FailOn{Label: "boom", When: func(r *row.Row) bool { return r.Seq == 0 }, Panic: true}
	h := startPool(t, 1, failing)

	rows := testutil.Rows(3)
	h.feed(rows)
	testutil.T(t).Eventually(time.Second, func() bool { return h.host.Finished.Load() == 2 })

	if h.sink.Len() != 1 || h.pool.Stats().Failed != 1 {
		t.Errorf("expected one recorded panic, sink=%d", h.sink.Len())
	}
}

func TestPool_RemovedRowStops(t *testing.T) {
	after := testutil.NewRecorder("after")
	drop := operation.NewFilter("odd", func(r *row.Row) bool { return r.Seq%2 == 0 })
	h := startPool(t, 2, drop, after)

	rows := testutil.Rows(10)
	h.feed(rows)
	testutil.T(t).Eventually(time.Second, settled(rows))

	if len(after.Seen()) != 5 || len(h.host.Removed()) != 5 {
		t.Errorf("expected 5 kept and 5 removed, got %d/%d", len(after.Seen()), len(h.host.Removed()))
	}
	for _, r := range rows {
		if r.Seq%2 == 1 && r.State() != row.Removed {
			t.Errorf("row %d should be Removed, got %s", r.Seq, r.State())
		}
	}
}

func TestPool_DeferredRowsResumeAtNextOperation(t *testing.T) {
	before, after := testutil.NewRecorder("before"), testutil.NewRecorder("after")
	var flushed []int
	batch := operation.NewDeferred("batch", operation.DeferredConfig{BatchSize: 4, ForceFlush: 50 * time.Millisecond},
		func(_ context.Context, rows []*row.Row) error {
			flushed = append(flushed, len(rows))
			return nil
		})
	h := startPool(t, 3, before, batch, after)

	rows := testutil.Rows(10)
	h.feed(rows)
	testutil.T(t).Eventually(2*time.Second, settled(rows))

	total := 0
	for _, n := range flushed {
		if n == 0 {
			t.Fatal("empty flush")
		}
		total += n
	}
	if total != 10 {
		t.Errorf("expected every row flushed once, got %v", flushed)
	}
	for _, rec := range []*testutil.Recorder{before, after} {
		for id, n := range rec.Count() {
			if n != 1 {
				t.Fatalf("%s applied %d times to row %s", rec.Name(), n, id)
			}
		}
		if len(rec.Seen()) != 10 {
			t.Errorf("%s saw %d rows, want 10", rec.Name(), len(rec.Seen()))
		}
	}
	for _, r := range rows {
		if r.DeferState() != row.DeferNone {
			t.Errorf("row %d left in %s", r.Seq, r.DeferState())
		}
	}
}

func TestPool_SkipsTerminalRows(t *testing.T) {
	rec := testutil.NewRecorder("rec")
	h := startPool(t, 1, rec)

	r := row.New(nil)
	r.Remove()
	marker := row.New(nil)
	h.feed([]*row.Row{r, marker})
	testutil.T(t).Eventually(time.Second, settled([]*row.Row{marker}))

	if seen := rec.Seen(); len(seen) != 1 || seen[0] != marker {
		t.Error("terminal row must not be processed")
	}
}
