package async

import (
	"context"
	"sync"
)

// AutoResetEvent is a single-slot signal. A successful Wait consumes the
// signal; Set wakes exactly one waiter, or leaves the event signaled when no
// one is waiting.
type AutoResetEvent struct {
	mu       sync.Mutex
	signaled bool
	waiters  waitQueue
	closed   bool
}

// NewAutoResetEvent creates an event, optionally already signaled.
func NewAutoResetEvent(signaled bool) *AutoResetEvent {
	return &AutoResetEvent{signaled: signaled}
}

// Wait blocks until the event is signaled or ctx ends.
// A closed event releases its waiters with a nil error.
func (e *AutoResetEvent) Wait(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrDisposed
	}
	if e.signaled {
		e.signaled = false
		e.mu.Unlock()
		return nil
	}
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		return err
	}
	w := e.waiters.push()
	e.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.waiters.remove(w) && w.granted {
		e.setLocked()
	}
	return ctx.Err()
}

// Set hands the signal to the oldest waiter, or marks the event signaled.
func (e *AutoResetEvent) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.setLocked()
}

func (e *AutoResetEvent) setLocked() {
	if !e.waiters.grant() {
		e.signaled = true
	}
}

// Reset clears the signal.
func (e *AutoResetEvent) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signaled = false
}

// IsSet reports whether the event is currently signaled.
func (e *AutoResetEvent) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Close releases all waiters and rejects further waits. It is idempotent.
func (e *AutoResetEvent) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.waiters.releaseAll()
}
