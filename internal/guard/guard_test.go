package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	var (
		runs    atomic.Int32
		gotArgs atomic.Int32
		firedAt atomic.Int64
	)
	d := NewDebouncer(func(_ context.Context, n int) (string, error) {
		runs.Add(1)
		gotArgs.Store(int32(n))
		firedAt.Store(time.Now().UnixNano())
		return "settled", nil
	}, 500*time.Millisecond)

	start := time.Now()
	results := make([]string, 3)
	var wg sync.WaitGroup
	call := func(i, n int) {
		defer wg.Done()
		res, err := d.Call(context.Background(), n)
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
		results[i] = res
	}

	// Calls at t=0, t=100ms, t=150ms.
	wg.Add(3)
	go call(0, 1)
	time.Sleep(100 * time.Millisecond)
	go call(1, 2)
	time.Sleep(50 * time.Millisecond)
	go call(2, 3)
	wg.Wait()

	if runs.Load() != 1 {
		t.Fatalf("fn ran %d times, want 1", runs.Load())
	}
	if gotArgs.Load() != 3 {
		t.Errorf("fn ran with %d, want args of the latest call (3)", gotArgs.Load())
	}
	elapsed := time.Duration(firedAt.Load() - start.UnixNano())
	if elapsed < 640*time.Millisecond {
		t.Errorf("fn fired after %v, want ~650ms", elapsed)
	}
	for i, r := range results {
		if r != "settled" {
			t.Errorf("caller %d got %q, want shared result", i, r)
		}
	}
}

func TestDebouncer_SharesError(t *testing.T) {
	boom := errors.New("boom")
	d := NewDebouncer(func(context.Context, int) (int, error) {
		return 0, boom
	}, 20*time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Call(context.Background(), i)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("caller %d error = %v, want boom", i, err)
		}
	}
}

func TestDebouncer_CallDuringRunStartsNewCycle(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var runs atomic.Int32

	d := NewDebouncer(func(_ context.Context, n int) (int, error) {
		runs.Add(1)
		started <- struct{}{}
		if n == 1 {
			<-release
		}
		return n, nil
	}, 10*time.Millisecond)

	first := make(chan int)
	go func() {
		v, _ := d.Call(context.Background(), 1)
		first <- v
	}()
	<-started

	second := make(chan int)
	go func() {
		v, _ := d.Call(context.Background(), 2)
		second <- v
	}()
	<-started
	close(release)

	if v := <-first; v != 1 {
		t.Errorf("first cycle result = %d, want 1", v)
	}
	if v := <-second; v != 2 {
		t.Errorf("second cycle result = %d, want 2", v)
	}
	if runs.Load() != 2 {
		t.Errorf("fn ran %d times, want 2", runs.Load())
	}
}

func TestDebouncer_CallerContext(t *testing.T) {
	d := NewDebouncer(func(context.Context, int) (int, error) {
		return 7, nil
	}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Call(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}

	// The cycle still fires for a later caller.
	v, err := d.Call(context.Background(), 2)
	if err != nil || v != 7 {
		t.Errorf("Call() = %d, %v", v, err)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(func(context.Context, int) (int, error) {
		runs.Add(1)
		return 0, nil
	}, time.Hour)

	done := make(chan error)
	go func() {
		_, err := d.Call(context.Background(), 1)
		done <- err
	}()
	for !d.Pending() {
		time.Sleep(time.Millisecond)
	}
	d.Stop()

	if err := <-done; !errors.Is(err, ErrStopped) {
		t.Errorf("pending caller error = %v, want ErrStopped", err)
	}
	if _, err := d.Call(context.Background(), 2); !errors.Is(err, ErrStopped) {
		t.Errorf("Call after Stop error = %v, want ErrStopped", err)
	}
	if runs.Load() != 0 {
		t.Errorf("fn ran %d times after Stop", runs.Load())
	}
}

func TestNewDebouncer_DefaultDelay(t *testing.T) {
	d := NewDebouncer(func(context.Context, int) (int, error) { return 0, nil }, 0)
	if d.Delay() != DefaultDelay {
		t.Errorf("Delay() = %v, want %v", d.Delay(), DefaultDelay)
	}
}

func TestSerial_SharesInFlightResult(t *testing.T) {
	var s Serial[string]
	var runs atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{})

	fn := func(context.Context) (string, error) {
		if runs.Add(1) == 1 {
			close(entered)
		}
		<-release
		return "/cache/left-pad.1.3.0", nil
	}

	type result struct {
		path   string
		shared bool
		err    error
	}
	out := make(chan result, 2)
	go func() {
		p, shared, err := s.Do(context.Background(), "left-pad@1.3.0", fn)
		out <- result{p, shared, err}
	}()
	<-entered
	go func() {
		p, shared, err := s.Do(context.Background(), "left-pad@1.3.0", fn)
		out <- result{p, shared, err}
	}()

	// Give the second caller time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)

	a, b := <-out, <-out
	if a.err != nil || b.err != nil {
		t.Fatalf("errors: %v, %v", a.err, b.err)
	}
	if a.path != b.path {
		t.Errorf("paths differ: %q vs %q", a.path, b.path)
	}
	if !a.shared || !b.shared {
		t.Error("both callers should see a shared result")
	}
	if runs.Load() != 1 {
		t.Errorf("fn ran %d times, want 1", runs.Load())
	}
}

func TestSerial_DistinctKeysRunIndependently(t *testing.T) {
	var s Serial[int]
	var runs atomic.Int32
	var wg sync.WaitGroup

	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = s.Do(context.Background(), key, func(context.Context) (int, error) {
				runs.Add(1)
				time.Sleep(10 * time.Millisecond)
				return 1, nil
			})
		}(key)
	}
	wg.Wait()

	if runs.Load() != 2 {
		t.Errorf("fn ran %d times, want 2", runs.Load())
	}
}

func TestSerial_ContextCancel(t *testing.T) {
	var s Serial[int]
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := s.Do(ctx, "k", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDebouncerContext_CancelReachesRunningFn(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	entered := make(chan struct{})
	var finished atomic.Bool

	d := NewDebouncerContext(base, func(ctx context.Context, _ int) (int, error) {
		defer finished.Store(true)
		close(entered)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(2 * time.Second):
			return 1, nil
		}
	}, 10*time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Call(context.Background(), 1)
		errCh <- err
	}()
	<-entered
	cancel()
	d.Stop()
	d.Wait()

	if !finished.Load() {
		t.Error("Wait() returned before fn finished")
	}
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
}

func TestDebouncerContext_CancelledBaseSkipsFn(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	cancel()
	var runs atomic.Int32
	d := NewDebouncerContext(base, func(context.Context, int) (int, error) {
		runs.Add(1)
		return 0, nil
	}, 10*time.Millisecond)

	if _, err := d.Call(context.Background(), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
	if runs.Load() != 0 {
		t.Errorf("fn ran %d times with a cancelled base", runs.Load())
	}
}

func TestSerial_JoinedCallerSurvivesFirstCancel(t *testing.T) {
	var s Serial[int]
	entered := make(chan struct{})
	release := make(chan struct{})
	fnErr := make(chan error, 1)

	fn := func(ctx context.Context) (int, error) {
		close(entered)
		select {
		case <-release:
			fnErr <- nil
			return 42, nil
		case <-ctx.Done():
			fnErr <- ctx.Err()
			return 0, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := s.Do(firstCtx, "k", fn)
		firstErr <- err
	}()
	<-entered

	second := make(chan int, 1)
	go func() {
		v, _, _ := s.Do(context.Background(), "k", fn)
		second <- v
	}()
	// Give the second caller time to join.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first Do() error = %v, want context.Canceled", err)
	}
	close(release)

	if v := <-second; v != 42 {
		t.Errorf("second Do() = %d, want 42", v)
	}
	if err := <-fnErr; err != nil {
		t.Errorf("fn saw %v, want it to keep running for the joined caller", err)
	}
}

func TestSerial_CancelledWhenAllCallersLeave(t *testing.T) {
	var s Serial[int]
	fnErr := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, _, err := s.Do(ctx, "k", func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			fnErr <- ctx.Err()
		case <-time.After(2 * time.Second):
			fnErr <- nil
		}
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if err := <-fnErr; !errors.Is(err, context.Canceled) {
		t.Errorf("fn context error = %v, want context.Canceled", err)
	}

	// A later caller starts a fresh call.
	v, _, err := s.Do(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("Do() after abandon = %d, %v", v, err)
	}
}
