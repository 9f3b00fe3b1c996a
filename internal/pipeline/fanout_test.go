package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestFanOut_PreservesOrder(t *testing.T) {
	in := Lift([]int{30, 10, 20, 0, 5})

	// Более ранние элементы спят дольше и завершаются позже
	out := FanOut(context.Background(), "double", in, 3, func(_ context.Context, v int) (int, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 2, nil
	})

	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i, r := range out {
		if r.Err != nil {
			t.Errorf("out[%d] error: %v", i, r.Err)
		}
		if r.Index != i {
			t.Errorf("out[%d].Index = %d", i, r.Index)
		}
		if r.Value != in[i].Value*2 {
			t.Errorf("out[%d] = %d, want %d", i, r.Value, in[i].Value*2)
		}
	}
}

func TestFanOut_PerItemIsolation(t *testing.T) {
	in := Lift([]int{1, 2, 3})
	boom := errors.New("boom")

	out := FanOut(context.Background(), "extract", in, 2, func(_ context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})

	if !out[0].OK() || !out[2].OK() {
		t.Errorf("siblings should succeed: %+v", out)
	}

	var sf *StageFailure
	if !errors.As(out[1].Err, &sf) {
		t.Fatalf("out[1].Err = %v, want *StageFailure", out[1].Err)
	}
	if sf.Stage != "extract" || sf.Index != 1 || !errors.Is(sf, boom) {
		t.Errorf("StageFailure = %+v", sf)
	}
}

func TestFanOut_Panic(t *testing.T) {
	in := Lift([]int{1, 2})
	out := FanOut(context.Background(), "s", in, 2, func(_ context.Context, v int) (int, error) {
		if v == 1 {
			panic("unexpected")
		}
		return v, nil
	})
	if out[0].OK() {
		t.Error("panicking item should fail")
	}
	if !out[1].OK() {
		t.Errorf("sibling failed: %v", out[1].Err)
	}
}

func TestFanOut_SkipsFailedInputs(t *testing.T) {
	prev := errors.New("earlier stage")
	in := []Result[int]{
		{Index: 0, Value: 1},
		{Index: 1, Err: prev},
		{Index: 2, Value: 3},
	}

	var calls atomic.Int32
	out := FanOut(context.Background(), "s", in, 2, func(_ context.Context, v int) (int, error) {
		calls.Add(1)
		return v, nil
	})

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if !errors.Is(out[1].Err, prev) {
		t.Errorf("out[1].Err = %v, want carried error", out[1].Err)
	}
	if out[1].Index != 1 {
		t.Errorf("out[1].Index = %d, want 1", out[1].Index)
	}
}

func TestFanOut_ConcurrencyLimit(t *testing.T) {
	in := Lift(make([]int, 10))

	var current, peak atomic.Int32
	FanOut(context.Background(), "s", in, 2, func(_ context.Context, _ int) (int, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return 0, nil
	})

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestFanOut_Empty(t *testing.T) {
	out := FanOut(context.Background(), "s", []Result[int]{}, 2, func(_ context.Context, v int) (int, error) {
		t.Error("fn must not be called")
		return v, nil
	})
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}
