package async

import (
	"context"
	"sync"
)

type futureState uint8

const (
	futurePending futureState = iota
	futureResolved
	futureRejected
)

// Future holds a value that is completed exactly once, either resolved with a
// value or rejected with an error. Completion calls after the first one have
// no effect.
type Future[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	state futureState
	value T
	err   error
}

// NewFuture creates a pending future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future with v. It reports whether this call completed it.
func (f *Future[T]) Resolve(v T) bool {
	return f.complete(v, nil, futureResolved)
}

// Reject completes the future with err. It reports whether this call completed it.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err, futureRejected)
}

func (f *Future[T]) complete(v T, err error, state futureState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != futurePending {
		return false
	}
	f.state = state
	f.value = v
	f.err = err
	close(f.done)
	return true
}

// Done returns a channel that is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	default:
	}

	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the completed value and error. On a pending future it
// returns the zero value and a nil error.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// IsCompleted reports whether the future has been resolved or rejected.
func (f *Future[T]) IsCompleted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != futurePending
}

// IsResolved reports whether the future was resolved.
func (f *Future[T]) IsResolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureResolved
}

// IsRejected reports whether the future was rejected.
func (f *Future[T]) IsRejected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureRejected
}
