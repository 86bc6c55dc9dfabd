package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEmitterOnEmitRemove tests registration, ordered emission and removal.
func TestEmitterOnEmitRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := NewEmitter[string]()

	var got []string
	first, err := e.On(ctx, "message", func(v string) { got = append(got, "first:"+v) })
	require.NoError(t, err)
	_, err = e.On(ctx, "message", func(v string) { got = append(got, "second:"+v) })
	require.NoError(t, err)
	_, err = e.On(ctx, "other", func(v string) { got = append(got, "other:"+v) })
	require.NoError(t, err)

	assert.Equal(t, 2, e.Emit("message", "hi"))
	assert.Equal(t, []string{"first:hi", "second:hi"}, got)

	removed, err := e.Remove(ctx, first)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = e.Remove(ctx, first)
	require.NoError(t, err)
	assert.False(t, removed)

	got = nil
	assert.Equal(t, 1, e.Emit("message", "again"))
	assert.Equal(t, []string{"second:again"}, got)
	assert.Equal(t, 0, e.Emit("missing", "x"))
}

// TestEmitterRegisterDuringEmit tests that a listener can register from
// inside an emission without deadlocking.
func TestEmitterRegisterDuringEmit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := NewEmitter[int]()

	var calls atomic.Int32
	_, err := e.On(ctx, "tick", func(int) {
		calls.Add(1)
		_, _ = e.On(ctx, "tick", func(int) { calls.Add(100) })
	})
	require.NoError(t, err)

	e.Emit("tick", 1)
	assert.Equal(t, int32(1), calls.Load(), "snapshot taken before the emission")
	assert.Equal(t, 2, e.Count("tick"))
}

// TestEmitterConcurrentRegistration tests that concurrent On calls all land.
func TestEmitterConcurrentRegistration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := NewEmitter[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.On(ctx, "evt", func(int) {})
			e.Emit("evt", 0)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, e.Count("evt"))
}

// TestEmitterClose tests that Close drops listeners and rejects new ones.
func TestEmitterClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := NewEmitter[int]()
	_, err := e.On(ctx, "evt", func(int) {})
	require.NoError(t, err)

	e.Close()
	assert.Equal(t, 0, e.Emit("evt", 1))

	_, err = e.On(ctx, "evt", func(int) {})
	assert.ErrorIs(t, err, ErrDisposed)

	_, err = e.On(ctx, "evt", nil)
	assert.ErrorIs(t, err, ErrNilListener)
}

// TestEmitterCloseWithQueuedRegistrations tests that registrations waiting on
// the lock when Close runs fail and leave no listeners behind.
func TestEmitterCloseWithQueuedRegistrations(t *testing.T) {
	t.Parallel()

	e := NewEmitter[int]()
	require.NoError(t, e.lock.Wait(context.Background()))

	const n = 4
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := e.On(context.Background(), "evt", func(int) {})
			errs <- err
		}()
	}
	removed := make(chan error, 1)
	go func() {
		_, err := e.Remove(context.Background(), 1)
		removed <- err
	}()

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()

	require.Eventually(t, e.closed.Load, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.lock.Release(1))

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrDisposed)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for On")
		}
	}
	select {
	case err := <-removed:
		assert.ErrorIs(t, err, ErrDisposed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Remove")
	}
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Close")
	}

	assert.Equal(t, 0, e.Count("evt"))
	assert.Equal(t, 0, e.Emit("evt", 1))
	e.Close()
}
