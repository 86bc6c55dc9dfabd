package async

import (
	"context"
	"fmt"
	"sync"
)

// Semaphore is a counting semaphore with a FIFO waiter queue and a bounded
// maximum count.
type Semaphore struct {
	mu        sync.Mutex
	available int
	max       int
	waiters   waitQueue
	closed    bool
}

// NewSemaphore creates a semaphore holding initial units out of max.
func NewSemaphore(initial, max int) (*Semaphore, error) {
	if max <= 0 || initial < 0 || initial > max {
		return nil, fmt.Errorf("%w: initial=%d max=%d", ErrInvalidCount, initial, max)
	}
	return &Semaphore{available: initial, max: max}, nil
}

// NewBinarySemaphore creates a semaphore with one available unit out of one.
func NewBinarySemaphore() *Semaphore {
	return &Semaphore{available: 1, max: 1}
}

// Wait takes one unit, blocking until one is released or ctx ends.
// A closed semaphore releases its waiters with a nil error.
func (s *Semaphore) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.available > 0 {
		s.available--
		s.mu.Unlock()
		return nil
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	w := s.waiters.push()
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.waiters.remove(w) && w.granted {
		// The unit arrived together with the cancellation; pass it on.
		if !s.waiters.grant() {
			s.available++
		}
	}
	return ctx.Err()
}

// Release returns n units, handing each to the oldest waiter first.
// It fails without changing any state if the semaphore would exceed its maximum.
func (s *Semaphore) Release(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: release %d", ErrInvalidCount, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDisposed
	}

	handoffs := min(n, s.waiters.len())
	if s.available+n-handoffs > s.max {
		return ErrSemaphoreFull
	}
	for range handoffs {
		s.waiters.grant()
	}
	s.available += n - handoffs
	return nil
}

// Available returns the number of units that can be taken without waiting.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Max returns the maximum count.
func (s *Semaphore) Max() int {
	return s.max
}

// Close releases all waiters and rejects further waits. It is idempotent.
func (s *Semaphore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.waiters.releaseAll()
}
