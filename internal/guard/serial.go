// Package guard collapses concurrent and bursty invocations of the
// check-and-install flow. Serial shares one in-flight call per key;
// Debouncer coalesces a burst of calls into a single delayed call.
package guard

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Serial ensures at most one invocation of a function is in flight per key.
// A call arriving while another with the same key runs receives the
// in-flight result instead of starting a second invocation. Use the empty
// key for a process-wide guard.
//
// The zero value is ready to use.
type Serial[R any] struct {
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one key.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Do runs fn under key, or joins the call already running under key. The
// returned shared flag reports whether the result was delivered to more than
// one caller. If ctx ends first, Do returns ctx.Err() without waiting; the
// running call continues for the other callers.
//
// fn keeps the values of the context of the caller that started the call,
// but is cancelled only once every caller waiting on key has left.
func (s *Serial[R]) Do(ctx context.Context, key string, fn func(context.Context) (R, error)) (R, bool, error) {
	f := s.join(ctx, key)
	defer s.leave(key, f)

	ch := s.group.DoChan(key, func() (any, error) {
		return fn(f.ctx)
	})

	select {
	case <-ctx.Done():
		var zero R
		return zero, false, ctx.Err()
	case res := <-ch:
		v, _ := res.Val.(R)
		return v, res.Shared, res.Err
	}
}

func (s *Serial[R]) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights == nil {
		s.flights = make(map[string]*flight)
	}
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

func (s *Serial[R]) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
		// An abandoned call must not be joined by the next caller.
		s.group.Forget(key)
	}
}

// Forget makes the next Do for key start a new call even if one is running.
func (s *Serial[R]) Forget(key string) {
	s.group.Forget(key)
	s.mu.Lock()
	delete(s.flights, key)
	s.mu.Unlock()
}
