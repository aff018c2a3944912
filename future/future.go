// Package future provides the Future/Promise pairing used to propagate
// asynchronous results and failures across the upgrade handshake and the
// virtual loop. The shape (cascade, map, flatMap, flatMapThrowing, get)
// mirrors the EventLoopFuture/Promise contract the surrounding spec is
// written against; Get takes a context instead of blocking forever, since
// that's the idiomatic Go way to make a wait cancellable.
package future

import (
	"context"
	"sync"
)

// Promise is the write side of a Future. It may be settled exactly once;
// later calls to Succeed or Fail are no-ops.
type Promise[T any] struct {
	mu      sync.Mutex
	done    chan struct{}
	val     T
	err     error
	settled bool
}

// NewPromise creates an unsettled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Succeed settles the promise with a value.
func (p *Promise[T]) Succeed(val T) {
	p.settle(val, nil)
}

// Fail settles the promise with an error.
func (p *Promise[T]) Fail(err error) {
	var zero T
	p.settle(zero, err)
}

func (p *Promise[T]) settle(val T, err error) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return
	}
	p.val, p.err, p.settled = val, err, true
	p.mu.Unlock()
	close(p.done)
}

// Future returns the read side bound to this promise.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{p: p}
}

// Future is the read side of a Promise: a value that becomes available
// (or fails) at some point in the future.
type Future[T any] struct {
	p *Promise[T]
}

// Succeeded returns a Future that is already resolved with val.
func Succeeded[T any](val T) *Future[T] {
	p := NewPromise[T]()
	p.Succeed(val)
	return p.Future()
}

// Failed returns a Future that is already resolved with err.
func Failed[T any](err error) *Future[T] {
	p := NewPromise[T]()
	p.Fail(err)
	return p.Future()
}

// Done reports the channel that closes when the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.p.done
}

// Get blocks until the future settles or ctx is cancelled.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.p.done:
		return f.p.val, f.p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cascade forwards this future's outcome (success or failure) into p.
func (f *Future[T]) Cascade(p *Promise[T]) {
	go func() {
		v, err := f.Get(context.Background())
		if err != nil {
			p.Fail(err)
			return
		}
		p.Succeed(v)
	}()
}

// Map transforms a successful value. Failures pass through unchanged.
func Map[T, R any](f *Future[T], fn func(T) R) *Future[R] {
	out := NewPromise[R]()
	go func() {
		v, err := f.Get(context.Background())
		if err != nil {
			out.Fail(err)
			return
		}
		out.Succeed(fn(v))
	}()
	return out.Future()
}

// FlatMap chains a successful value into another future.
func FlatMap[T, R any](f *Future[T], fn func(T) *Future[R]) *Future[R] {
	out := NewPromise[R]()
	go func() {
		v, err := f.Get(context.Background())
		if err != nil {
			out.Fail(err)
			return
		}
		nv, nerr := fn(v).Get(context.Background())
		if nerr != nil {
			out.Fail(nerr)
			return
		}
		out.Succeed(nv)
	}()
	return out.Future()
}

// FlatMapThrowing is like FlatMap, but fn may also fail synchronously
// before producing the next future.
func FlatMapThrowing[T, R any](f *Future[T], fn func(T) (*Future[R], error)) *Future[R] {
	out := NewPromise[R]()
	go func() {
		v, err := f.Get(context.Background())
		if err != nil {
			out.Fail(err)
			return
		}
		next, ferr := fn(v)
		if ferr != nil {
			out.Fail(ferr)
			return
		}
		nv, nerr := next.Get(context.Background())
		if nerr != nil {
			out.Fail(nerr)
			return
		}
		out.Succeed(nv)
	}()
	return out.Future()
}
