package guard

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when a non-positive delay is given.
const DefaultDelay = 500 * time.Millisecond

// ErrStopped is returned to callers of a stopped Debouncer.
var ErrStopped = errors.New("debouncer stopped")

// Debouncer collapses bursts of calls into one. Each call restarts the
// timer; once delay passes without a new call, fn runs exactly once with the
// arguments of the latest call and every caller of that cycle receives the
// same result. A call arriving while fn runs opens a new pending cycle, so
// fn must be safe to run again right after it returns.
type Debouncer[A, R any] struct {
	fn    func(context.Context, A) (R, error)
	delay time.Duration
	base  context.Context

	mu      sync.Mutex
	running sync.WaitGroup
	timer   *time.Timer
	pending *cycle[A, R]
	gen     uint64
	stopped bool
}

type cycle[A, R any] struct {
	args A
	ctx  context.Context
	done chan struct{}
	res  R
	err  error
}

// NewDebouncer wraps fn with a debounce of delay.
func NewDebouncer[A, R any](fn func(context.Context, A) (R, error), delay time.Duration) *Debouncer[A, R] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[A, R]{fn: fn, delay: delay}
}

// NewDebouncerContext is like NewDebouncer, but fn always runs with base as
// its context. Cancelling base cancels a running fn and keeps pending
// cycles from starting.
func NewDebouncerContext[A, R any](base context.Context, fn func(context.Context, A) (R, error), delay time.Duration) *Debouncer[A, R] {
	d := NewDebouncer(fn, delay)
	d.base = base
	return d
}

// Delay returns the configured quiet period.
func (d *Debouncer[A, R]) Delay() time.Duration { return d.delay }

// Call schedules fn with args and blocks until the cycle it joined settles.
// If ctx ends first, Call returns ctx.Err(); the cycle still fires for the
// remaining callers. Without a base context, fn runs with the latest
// caller's context values but without its cancellation.
func (d *Debouncer[A, R]) Call(ctx context.Context, args A) (R, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		var zero R
		return zero, ErrStopped
	}

	if d.pending == nil {
		d.pending = &cycle[A, R]{done: make(chan struct{})}
	}
	c := d.pending
	c.args = args
	if d.base != nil {
		c.ctx = d.base
	} else {
		c.ctx = context.WithoutCancel(ctx)
	}

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
	d.mu.Unlock()

	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// fire runs the pending cycle if no call arrived since gen was scheduled.
func (d *Debouncer[A, R]) fire(gen uint64) {
	d.mu.Lock()
	if d.gen != gen || d.pending == nil || d.stopped {
		d.mu.Unlock()
		return
	}
	c := d.pending
	d.pending = nil
	d.timer = nil
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()

	if err := c.ctx.Err(); err != nil {
		c.err = err
	} else {
		c.res, c.err = d.fn(c.ctx, c.args)
	}
	close(c.done)
}

// Pending reports whether a cycle is waiting for its quiet period to end.
func (d *Debouncer[A, R]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels any pending cycle and rejects further calls. Waiters of the
// cancelled cycle receive ErrStopped. A cycle already running completes;
// use Wait to block until it has.
func (d *Debouncer[A, R]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if c := d.pending; c != nil {
		d.pending = nil
		c.err = ErrStopped
		close(c.done)
	}
}

// Wait blocks until every fired cycle has returned. Call it after Stop to be
// sure fn is no longer running.
func (d *Debouncer[A, R]) Wait() {
	d.running.Wait()
}
