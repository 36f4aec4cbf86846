package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
	if _, err := e.Unwrap(); err == nil || err.Error() != "fail" {
		t.Fatal("Err should carry its error")
	}
}

func TestFromPair(t *testing.T) {
	if FromPair(1, errors.New("x")).IsOk() {
		t.Fatal("FromPair with error should be Err")
	}
	if !FromPair(1, nil).IsOk() {
		t.Fatal("FromPair without error should be Ok")
	}
}

// --- Stages ---

func TestThenShortCircuits(t *testing.T) {
	called := false
	first := Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errors.New("stop")) })
	second := Stage[int, string](func(_ context.Context, _ int) Result[string] {
		called = true
		return Ok("x")
	})
	r := Then(first, second)(context.Background(), 1)
	if r.IsOk() || called {
		t.Fatal("second stage must not run after an error")
	}
}

func TestThenAndMapStage(t *testing.T) {
	double := MapStage(func(i int) int { return i * 2 })
	str := MapStage(strconv.Itoa)
	v, err := Then(double, str)(context.Background(), 21).Unwrap()
	if err != nil || v != "42" {
		t.Fatalf("got %q %v", v, err)
	}
}

func TestTryStage(t *testing.T) {
	parse := TryStage(func(_ context.Context, s string) (int, error) { return strconv.Atoi(s) })
	if v, err := parse(context.Background(), "7").Unwrap(); err != nil || v != 7 {
		t.Fatalf("got %d %v", v, err)
	}
	if parse(context.Background(), "x").IsOk() {
		t.Fatal("expected error")
	}
}

func TestTracedStage(t *testing.T) {
	traced := TracedStage("double", MapStage(func(i int) int { return i * 2 }))
	if v, _ := traced(context.Background(), 5).Unwrap(); v != 10 {
		t.Fatalf("traced: v=%d", v)
	}
	failing := TracedStage("fail", Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errors.New("x")) }))
	if failing(context.Background(), 1).IsOk() {
		t.Fatal("expected error to propagate")
	}
}

// --- Parallel ---

func TestParMapResultPreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	var running, peak atomic.Int32
	out := ParMapResult(items, 2, func(i int) Result[int] {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Duration(i) * time.Millisecond)
		running.Add(-1)
		return Ok(i * 10)
	})
	for i, r := range out {
		if v, _ := r.Unwrap(); v != items[i]*10 {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("worker bound exceeded: %d", peak.Load())
	}
}

func TestParMapResultEmpty(t *testing.T) {
	if out := ParMapResult([]int{}, 4, func(i int) Result[int] { return Ok(i) }); len(out) != 0 {
		t.Fatal("expected empty")
	}
}

func TestFanOut(t *testing.T) {
	out := FanOut(func() int { return 1 }, func() int { return 2 })
	if len(out) != 2 || out[0] != 1 || out[1] != 2 {
		t.Fatalf("got %v", out)
	}
}

// --- Retry ---

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		calls++
		if calls < 3 {
			return Err[int](errors.New("transient"))
		}
		return Ok(calls)
	})
	if v, err := r.Unwrap(); err != nil || v != 3 {
		t.Fatalf("got %d %v", v, err)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	opts := RetryOpts{
		MaxAttempts: 5,
		InitialWait: time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](permanent)
	})
	if r.IsOk() || calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 3, InitialWait: time.Second}, func(context.Context) Result[int] {
		return Err[int](errors.New("fail"))
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// --- Slices ---

func TestSliceHelpers(t *testing.T) {
	if got := Map([]int{1, 2}, strconv.Itoa); got[0] != "1" || got[1] != "2" {
		t.Fatalf("Map: %v", got)
	}
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("Chunk: %v", chunks)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("Chunk with n=0 should be nil")
	}
}
