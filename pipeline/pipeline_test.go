package pipeline

import (
	"context"
	"errors"
	"iter"
	"testing"
)

func TestFromSlice_Collect(t *testing.T) {
	got, err := Collect(context.Background(), FromSlice([]int{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{1, 2, 3}) {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}

func TestFromSlice_Empty(t *testing.T) {
	got, err := Collect(context.Background(), FromSlice([]int{}))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestFrom_Iterator(t *testing.T) {
	it := &sliceIter[string]{items: []string{"a", "b"}}
	got, err := Collect(context.Background(), From[string](it))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v, want [a b]", got)
	}
}

func TestMap_Error(t *testing.T) {
	p := Map(FromSlice([]int{1, 2, 3}), func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errors.New("bad value")
		}
		return n * 10, nil
	})
	got, err := Collect(context.Background(), p)
	if err == nil {
		t.Fatal("expected error")
	}
	if !intSliceEqual(got, []int{10}) {
		t.Errorf("expected [10] before error, got %v", got)
	}
}

func TestFilterTapTake(t *testing.T) {
	var tapped []int
	p := Take(Tap(Filter(FromSlice([]int{1, 2, 3, 4, 5, 6}), func(n int) bool { return n%2 == 0 }),
		func(_ context.Context, n int) error {
			tapped = append(tapped, n)
			return nil
		}), 2)

	got, err := Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{2, 4}) {
		t.Errorf("got %v, want [2 4]", got)
	}
	if !intSliceEqual(tapped, []int{2, 4}) {
		t.Errorf("take should stop pulling, tapped %v", tapped)
	}
}

func TestConcat(t *testing.T) {
	got, err := Collect(context.Background(), Concat(FromSlice([]int{1}), FromSlice([]int{}), FromSlice([]int{2, 3})))
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{1, 2, 3}) {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}

func TestFromSeq_ErrorAfterValues(t *testing.T) {
	boom := errors.New("boom")
	p := FromSeq(func(_ context.Context) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			if !yield(1, nil) || !yield(2, nil) {
				return
			}
			yield(0, boom)
		}
	})
	got, err := Collect(context.Background(), p)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !intSliceEqual(got, []int{1, 2}) {
		t.Errorf("got %v, want [1 2]", got)
	}
}

func TestFromSeq_CloseStopsProducer(t *testing.T) {
	stopped := false
	p := FromSeq(func(_ context.Context) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			defer func() { stopped = true }()
			for i := 0; ; i++ {
				if !yield(i, nil) {
					return
				}
			}
		}
	})
	got, err := Collect(context.Background(), Take(p, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 values, got %v", got)
	}
	if !stopped {
		t.Error("closing the iterator should stop the producer")
	}
}

func TestFromSeq_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := FromSeq(func(_ context.Context) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) { yield(1, nil) }
	})
	if _, err := Collect(ctx, p); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAll(t *testing.T) {
	var got []int
	for v, err := range FromSlice([]int{4, 5, 6}).All(context.Background()) {
		if err != nil {
			t.Fatal(err)
		}
		if v == 6 {
			break
		}
		got = append(got, v)
	}
	if !intSliceEqual(got, []int{4, 5}) {
		t.Errorf("got %v, want [4 5]", got)
	}
}

func TestForEach_SinkError(t *testing.T) {
	sinkErr := errors.New("sink")
	n := 0
	err := ForEach(context.Background(), FromSlice([]int{1, 2, 3}), func(_ context.Context, _ int) error {
		n++
		if n == 2 {
			return sinkErr
		}
		return nil
	})
	if !errors.Is(err, sinkErr) {
		t.Errorf("expected sink error, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected drain to stop at 2, got %d", n)
	}
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
