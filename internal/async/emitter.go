package async

import (
	"context"
	"sync/atomic"
)

// ListenerID identifies a registered listener.
type ListenerID uint64

type listener[T any] struct {
	id ListenerID
	fn func(T)
}

type registry[T any] map[string][]listener[T]

// Emitter is a pub/sub registry keyed by event name.
//
// Registration and removal are serialized through a binary semaphore and
// publish a fresh snapshot of the registry. Emit iterates the current snapshot
// synchronously without taking the semaphore, so it never waits on
// registration traffic; a listener added while an emission is in progress may
// or may not observe that emission.
type Emitter[T any] struct {
	lock      *Semaphore
	nextID    ListenerID
	listeners atomic.Pointer[registry[T]]
	closed    atomic.Bool
}

// NewEmitter creates an emitter without listeners.
func NewEmitter[T any]() *Emitter[T] {
	e := &Emitter[T]{lock: NewBinarySemaphore()}
	e.listeners.Store(&registry[T]{})
	return e
}

// On registers fn for events published under name.
func (e *Emitter[T]) On(ctx context.Context, name string, fn func(T)) (ListenerID, error) {
	if fn == nil {
		return 0, ErrNilListener
	}
	if err := e.lock.Wait(ctx); err != nil {
		return 0, err
	}
	defer e.lock.Release(1)
	if e.closed.Load() {
		return 0, ErrDisposed
	}

	e.nextID++
	id := e.nextID

	current := *e.listeners.Load()
	next := make(registry[T], len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	entries := make([]listener[T], 0, len(current[name])+1)
	entries = append(entries, current[name]...)
	next[name] = append(entries, listener[T]{id: id, fn: fn})
	e.listeners.Store(&next)

	return id, nil
}

// Remove unregisters a listener. It reports whether the listener was found.
func (e *Emitter[T]) Remove(ctx context.Context, id ListenerID) (bool, error) {
	if err := e.lock.Wait(ctx); err != nil {
		return false, err
	}
	defer e.lock.Release(1)
	if e.closed.Load() {
		return false, ErrDisposed
	}

	current := *e.listeners.Load()
	next := make(registry[T], len(current))
	found := false
	for name, entries := range current {
		kept := make([]listener[T], 0, len(entries))
		for _, l := range entries {
			if l.id == id {
				found = true
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) > 0 {
			next[name] = kept
		}
	}
	if found {
		e.listeners.Store(&next)
	}
	return found, nil
}

// Emit calls every listener registered under name, in registration order,
// and returns how many were called.
func (e *Emitter[T]) Emit(name string, v T) int {
	entries := (*e.listeners.Load())[name]
	for _, l := range entries {
		l.fn(v)
	}
	return len(entries)
}

// Count returns the number of listeners registered under name.
func (e *Emitter[T]) Count(name string) int {
	return len((*e.listeners.Load())[name])
}

// Close drops every listener and rejects further registrations. It waits for
// a registration in progress to finish; registrations still queued fail with
// ErrDisposed.
func (e *Emitter[T]) Close() {
	if e.closed.Swap(true) {
		return
	}
	if err := e.lock.Wait(context.Background()); err == nil {
		e.listeners.Store(&registry[T]{})
	}
	e.lock.Close()
}
