package rest

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
)

func globalHeaders(limit int, window time.Duration) map[string]string {
	return map[string]string{
		knet.HeaderGlobalLimit:  strconv.Itoa(limit),
		knet.HeaderGlobalWindow: strconv.FormatInt(window.Milliseconds(), 10),
	}
}

// TestGlobalLimiterDelaysOverLimit tests that the third of three rapid calls
// against a limit of two per second waits for the window to reset
func TestGlobalLimiterDelaysOverLimit(t *testing.T) {
	t.Parallel()

	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return response(http.StatusOK, globalHeaders(2, time.Second)), nil
	})
	limiter := NewGlobalLimiter(upstream, Options{})
	defer limiter.Close()
	ctx := context.Background()

	start := time.Now()
	var elapsed []time.Duration
	for i := 0; i < 3; i++ {
		resp, err := limiter.RoundTrip(newRequest(t, ctx, http.MethodGet, "https://api.test/rooms"))
		require.NoError(t, err)
		resp.Body.Close()
		elapsed = append(elapsed, time.Since(start))
	}

	assert.Less(t, elapsed[1], 500*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed[2], time.Second)
}

// TestGlobalLimiterResync tests that changed server limits replace the local window
func TestGlobalLimiterResync(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return response(http.StatusOK, globalHeaders(2, time.Minute)), nil
		}
		return response(http.StatusOK, globalHeaders(10, time.Minute)), nil
	})
	limiter := NewGlobalLimiter(upstream, Options{})
	defer limiter.Close()
	ctx := context.Background()

	_, err := limiter.RoundTrip(newRequest(t, ctx, http.MethodGet, "https://api.test/a"))
	require.NoError(t, err)
	assert.Equal(t, 2, limiter.Window().Limit)
	assert.Equal(t, 1, limiter.Window().Remaining)

	// This call spends the old window; its headers report the new limit.
	_, err = limiter.RoundTrip(newRequest(t, ctx, http.MethodGet, "https://api.test/a"))
	require.NoError(t, err)
	assert.Equal(t, 10, limiter.Window().Limit)
	assert.Equal(t, 9, limiter.Window().Remaining)

	d := timed(func() {
		_, err = limiter.RoundTrip(newRequest(t, ctx, http.MethodGet, "https://api.test/a"))
	})
	require.NoError(t, err)
	assert.Less(t, d, 500*time.Millisecond)
	assert.Equal(t, 8, limiter.Window().Remaining)
}

// TestGlobalLimiterRetriesGlobal429 tests that a global 429 closes the gate
// until the reported reset and retries the same request
func TestGlobalLimiterRetriesGlobal429(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return response(http.StatusTooManyRequests, map[string]string{
				knet.HeaderIsGlobal: "true",
				knet.HeaderResetsAt: time.Now().Add(300 * time.Millisecond).Format(time.RFC3339Nano),
			}), nil
		}
		return response(http.StatusOK, nil), nil
	})
	rec, events := newRecorder(t)
	limiter := NewGlobalLimiter(upstream, Options{Events: events})
	defer limiter.Close()

	var resp *http.Response
	var err error
	d := timed(func() {
		resp, err = limiter.RoundTrip(newRequest(t, context.Background(), http.MethodGet, "https://api.test/a"))
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, d, 250*time.Millisecond)

	got := rec.all()
	require.Len(t, got, 1)
	limited, ok := got[0].(RateLimited)
	require.True(t, ok)
	assert.True(t, limited.Global)
}

// TestGlobalLimiterIgnoresRoute429 tests that a route scoped 429 is passed through
func TestGlobalLimiterIgnoresRoute429(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusTooManyRequests, map[string]string{knet.HeaderIsGlobal: "false"}), nil
	})
	limiter := NewGlobalLimiter(upstream, Options{})
	defer limiter.Close()

	resp, err := limiter.RoundTrip(newRequest(t, context.Background(), http.MethodGet, "https://api.test/a"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

// TestGlobalLimiterCancellation tests that a request waiting on the gate
// honors its context and leaves the window untouched
func TestGlobalLimiterCancellation(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusOK, globalHeaders(1, time.Minute)), nil
	})
	limiter := NewGlobalLimiter(upstream, Options{})
	defer limiter.Close()

	_, err := limiter.RoundTrip(newRequest(t, context.Background(), http.MethodGet, "https://api.test/a"))
	require.NoError(t, err)
	before := limiter.Window()
	assert.Equal(t, 0, before.Remaining)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limiter.RoundTrip(newRequest(t, ctx, http.MethodGet, "https://api.test/a"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, before, limiter.Window())
}

// TestGlobalLimiterClose tests that Close stops the replenish timer and fails
// both waiting and later requests
func TestGlobalLimiterClose(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusOK, globalHeaders(1, time.Minute)), nil
	})
	limiter := NewGlobalLimiter(upstream, Options{})

	_, err := limiter.RoundTrip(newRequest(t, context.Background(), http.MethodGet, "https://api.test/a"))
	require.NoError(t, err)

	waiting := make(chan error, 1)
	go func() {
		_, err := limiter.RoundTrip(newRequest(t, context.Background(), http.MethodGet, "https://api.test/a"))
		waiting <- err
	}()
	time.Sleep(20 * time.Millisecond)

	limiter.Close()
	select {
	case err := <-waiting:
		assert.ErrorIs(t, err, async.ErrDisposed)
	case <-time.After(5 * time.Second):
		t.Fatal("waiting request was not released")
	}

	_, err = limiter.RoundTrip(newRequest(t, context.Background(), http.MethodGet, "https://api.test/a"))
	assert.ErrorIs(t, err, async.ErrDisposed)
	assert.Equal(t, int32(1), calls.Load())

	limiter.mu.Lock()
	assert.Nil(t, limiter.timer)
	limiter.mu.Unlock()

	limiter.Close()
}
