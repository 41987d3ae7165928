package transport

import (
	"context"
	"sync"
)

// Result is the deferred outcome of a Send: true when the handle accepted the
// payload, false otherwise. It resolves exactly once.
type Result struct {
	mu        sync.Mutex
	done      chan struct{}
	ok        bool
	settled   bool
	callbacks []func(bool)
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func resolved(ok bool) *Result {
	r := newResult()
	r.resolve(ok)
	return r
}

// resolve sets the value on the first call; later calls are ignored.
func (r *Result) resolve(ok bool) {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.ok = ok
	r.settled = true
	callbacks := r.callbacks
	r.callbacks = nil
	close(r.done)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(ok)
	}
}

// OnResolve registers fn to run with the outcome. fn runs on the resolving
// goroutine, or immediately on the caller's when the result is already
// resolved.
func (r *Result) OnResolve(fn func(ok bool)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	if !r.settled {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return
	}
	ok := r.ok
	r.mu.Unlock()
	fn(ok)
}

// Done is closed once the result is resolved.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Value returns the outcome without blocking. resolved is false while the send
// is still in flight.
func (r *Result) Value() (ok, resolved bool) {
	select {
	case <-r.done:
		return r.ok, true
	default:
		return false, false
	}
}

// Wait blocks until the result resolves or ctx is done. Giving up on the wait
// does not cancel the send.
func (r *Result) Wait(ctx context.Context) (bool, error) {
	select {
	case <-r.done:
		return r.ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
