package async

import (
	"context"
	"reflect"
	"sync"
)

// Unbounded is an unbounded FIFO channel with awaitable reads and a one-way
// completed state. Any number of goroutines may write and read.
type Unbounded[T any] struct {
	mu        sync.Mutex
	items     []T
	readers   waitQueue
	completed bool
	drained   chan struct{}
}

// NewUnbounded creates an empty channel.
func NewUnbounded[T any]() *Unbounded[T] {
	return &Unbounded[T]{drained: make(chan struct{})}
}

// Write enqueues v and wakes the oldest waiting reader.
func (c *Unbounded[T]) Write(v T) error {
	if isNil(v) {
		return ErrNilItem
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.completed {
		return ErrChannelCompleted
	}
	c.items = append(c.items, v)
	c.readers.grant()
	return nil
}

// isNil reports whether v is a nil interface, pointer, map, slice, func or
// chan.
func isNil[T any](v T) bool {
	if any(v) == nil {
		return true
	}
	rv := reflect.ValueOf(&v).Elem()
	for rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// WaitToRead blocks until an item is available or the channel is completed
// and drained. It reports true when an item can be read.
func (c *Unbounded[T]) WaitToRead(ctx context.Context) (bool, error) {
	for {
		c.mu.Lock()
		if len(c.items) > 0 {
			c.mu.Unlock()
			return true, nil
		}
		if c.completed {
			c.mu.Unlock()
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			c.mu.Unlock()
			return false, err
		}
		w := c.readers.push()
		c.mu.Unlock()

		select {
		case <-w.ready:
			// Re-check: another reader may have taken the item first.
			continue
		case <-ctx.Done():
		}

		c.mu.Lock()
		if !c.readers.remove(w) && len(c.items) > 0 {
			// The wake-up raced with cancellation; hand it to the next reader.
			c.readers.grant()
		}
		c.mu.Unlock()
		return false, ctx.Err()
	}
}

// Read dequeues the head item, failing with ErrChannelEmpty when none is queued.
func (c *Unbounded[T]) Read() (T, error) {
	v, ok := c.TryRead()
	if !ok {
		return v, ErrChannelEmpty
	}
	return v, nil
}

// TryRead dequeues the head item if there is one.
func (c *Unbounded[T]) TryRead() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if len(c.items) == 0 {
		return zero, false
	}
	v := c.items[0]
	c.items[0] = zero
	c.items = c.items[1:]
	if len(c.items) == 0 {
		c.items = nil
		if c.completed {
			close(c.drained)
		}
	}
	return v, true
}

// Complete marks the channel as complete. Queued items can still be read;
// waiting readers are woken so they observe the new state.
func (c *Unbounded[T]) Complete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.completed {
		return ErrChannelCompleted
	}
	c.completed = true
	for c.readers.grant() {
	}
	if len(c.items) == 0 {
		close(c.drained)
	}
	return nil
}

// Done returns a channel that is closed once the channel is completed and
// every queued item has been read.
func (c *Unbounded[T]) Done() <-chan struct{} {
	return c.drained
}

// Len returns the number of queued items.
func (c *Unbounded[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// IsCompleted reports whether Complete has been called.
func (c *Unbounded[T]) IsCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}
