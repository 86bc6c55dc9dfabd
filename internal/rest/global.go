package rest

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
)

// GlobalLimiter enforces the one quota shared by every request.
//
// An AutoResetEvent acts as the "may send" gate. Each request consumes the
// gate; while the window has capacity left the gate is signaled again at once,
// otherwise it is signaled when the window resets. Limits reported by the
// server replace the local window whenever they differ.
type GlobalLimiter struct {
	next   http.RoundTripper
	gate   *async.AutoResetEvent
	now    func() time.Time
	events *async.Emitter[Event]
	log    zerolog.Logger

	mu     sync.Mutex
	window Window
	timer  *time.Timer
	gen    uint64
	closed bool
}

// NewGlobalLimiter wraps next.
func NewGlobalLimiter(next http.RoundTripper, opts Options) *GlobalLimiter {
	return &GlobalLimiter{
		next:   next,
		gate:   async.NewAutoResetEvent(true),
		now:    opts.now(),
		events: opts.Events,
		log:    opts.logger().With().Str("component", "global_limiter").Logger(),
	}
}

// Window returns the current global window.
func (l *GlobalLimiter) Window() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}

func (l *GlobalLimiter) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 0; ; {
		if err := l.gate.Wait(ctx); err != nil {
			return nil, err
		}
		ok, err := l.acquire()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		r, err := replay(req, attempt)
		if err != nil {
			return nil, err
		}
		attempt++

		resp, err := l.next.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		l.sync(resp.Header)

		if global, _ := isGlobal(resp.Header); resp.StatusCode == http.StatusTooManyRequests && global {
			resetAt := l.limited(resp.Header)
			l.log.Warn().Time("resets_at", resetAt).Str("url", req.URL.Redacted()).Msg("Global rate limit hit, retrying after reset")
			emit(l.events, RateLimited{Global: true, ResetAt: resetAt})
			discard(resp)
			continue
		}
		return resp, nil
	}
}

// acquire charges the window after the gate was passed. It reports false
// when the window turned out to be empty, in which case the gate stays
// closed until the scheduled reset. Waiters released by Close get
// async.ErrDisposed.
func (l *GlobalLimiter) acquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, async.ErrDisposed
	}
	if l.window.IsZero() {
		l.gate.Set()
		return true, nil
	}

	now := l.now()
	l.window = l.window.Advance(now)
	w, ok := l.window.Consume()
	if !ok {
		l.scheduleLocked(l.window.ResetAt, now)
		return false, nil
	}
	l.window = w
	if w.Remaining > 0 {
		l.gate.Set()
	} else {
		l.scheduleLocked(w.ResetAt, now)
	}
	return true, nil
}

// sync replaces the window when the server reports different limits. The
// request that carried the headers counts against the new window.
func (l *GlobalLimiter) sync(h http.Header) {
	limit, period, ok := parseWindow(h, knet.HeaderGlobalLimit, knet.HeaderGlobalWindow)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.window.Matches(limit, period) {
		return
	}

	now := l.now()
	l.log.Debug().Int("limit", limit).Dur("window", period).Msg("Global window resynchronized")
	l.window, _ = NewWindow(limit, period, now).Consume()
	if l.window.Remaining == 0 {
		l.gate.Reset()
		l.scheduleLocked(l.window.ResetAt, now)
		return
	}
	// The new window has room: drop any pending reset and reopen the gate.
	// acquire rechecks the window, so an extra signal cannot overspend it.
	l.cancelTimerLocked()
	l.gate.Set()
}

// limited closes the gate until the reset reported with a global 429.
func (l *GlobalLimiter) limited(h http.Header) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	resetAt, ok := resetsAt(h)
	if !ok {
		resetAt = now.Add(time.Second)
		if !l.window.IsZero() {
			resetAt = now.Add(l.window.Period)
		}
	}
	if !l.window.IsZero() {
		l.window = l.window.Exhaust(resetAt)
	}
	l.gate.Reset()
	l.scheduleLocked(resetAt, now)
	return resetAt
}

func (l *GlobalLimiter) cancelTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
}

func (l *GlobalLimiter) scheduleLocked(at, now time.Time) {
	l.cancelTimerLocked()
	if l.closed {
		return
	}
	gen := l.gen
	l.timer = time.AfterFunc(at.Sub(now), func() { l.replenish(gen) })
}

func (l *GlobalLimiter) replenish(gen uint64) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	l.window = l.window.Refill(l.now())
	l.mu.Unlock()

	l.gate.Set()
}

// Close stops the replenish timer and fails every waiting and later request
// with async.ErrDisposed. It is idempotent.
func (l *GlobalLimiter) Close() {
	l.mu.Lock()
	l.closed = true
	l.cancelTimerLocked()
	l.mu.Unlock()
	l.gate.Close()
}
