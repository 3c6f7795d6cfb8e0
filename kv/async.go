package kv

import "context"

// Result is an in-flight operation started with Async. It is resolved
// exactly once; Await may be called from any goroutine, any number of times.
type Result[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Async runs fn on its own goroutine and returns a Result to await. The
// store's per-operation transactional guarantees are unchanged; only the
// caller's goroutine is freed up:
//
//	res := kv.Async(func() (int64, error) { return store.LPush(ctx, "q", job) })
//	...
//	n, err := res.Await(ctx)
func Async[T any](fn func() (T, error)) *Result[T] {
	r := &Result[T]{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.val, r.err = fn()
	}()
	return r
}

// Await blocks until the operation resolves or ctx is done, whichever comes
// first. When the context wins, the operation keeps running in the
// background and a later Await can still collect it.
func (r *Result[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the resolved value without blocking; ok is false while the
// operation is still in flight.
func (r *Result[T]) TryGet() (val T, ok bool, err error) {
	select {
	case <-r.done:
		return r.val, true, r.err
	default:
		var zero T
		return zero, false, nil
	}
}
