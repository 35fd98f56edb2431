package idb

import (
	"context"
	"sync"
)

// Request is the completion handle of an asynchronous operation. Observers
// attached with OnSuccess and OnError run once, on the goroutine that
// completes the request, or immediately when it has already completed.
// Failures are also reported to the database's ErrorHandler, so attaching
// OnError is optional.
type Request[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	completed bool
	result    T
	err       error
	onSuccess []func(T)
	onError   []func(error)
}

func newRequest[T any]() *Request[T] {
	return &Request[T]{done: make(chan struct{})}
}

func resolvedRequest[T any](v T, err error) *Request[T] {
	r := newRequest[T]()
	r.resolve(v, err)
	return r
}

func (r *Request[T]) resolve(v T, err error) {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return
	}
	r.completed = true
	r.result, r.err = v, err
	success, failure := r.onSuccess, r.onError
	r.onSuccess, r.onError = nil, nil
	r.mu.Unlock()

	// Observers finish before Done closes, so Wait never returns ahead of them.
	defer close(r.done)
	if err != nil {
		for _, fn := range failure {
			fn(err)
		}
		return
	}
	for _, fn := range success {
		fn(v)
	}
}

// Done is closed when the request completes.
func (r *Request[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completes or ctx is done.
func (r *Request[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking. It reports ErrPending while
// the request is in flight.
func (r *Request[T]) Result() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.completed {
		var zero T
		return zero, ErrPending
	}
	return r.result, r.err
}

// OnSuccess registers fn to receive the result.
func (r *Request[T]) OnSuccess(fn func(T)) *Request[T] {
	r.mu.Lock()
	if !r.completed {
		r.onSuccess = append(r.onSuccess, fn)
		r.mu.Unlock()
		return r
	}
	v, err := r.result, r.err
	r.mu.Unlock()
	if err == nil {
		fn(v)
	}
	return r
}

// OnError registers fn to receive the failure.
func (r *Request[T]) OnError(fn func(error)) *Request[T] {
	r.mu.Lock()
	if !r.completed {
		r.onError = append(r.onError, fn)
		r.mu.Unlock()
		return r
	}
	err := r.err
	r.mu.Unlock()
	if err != nil {
		fn(err)
	}
	return r
}
