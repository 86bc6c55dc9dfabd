package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
)

type routeState struct {
	sem    *async.Semaphore
	window Window
}

// RouteLimiter keeps one window per route, a route being the request method
// plus its URL without the query. When the local window shows nothing left
// it delays the request until the reset instead of sending it, because
// concurrent callers make throttling on response headers alone unreliable.
type RouteLimiter struct {
	next      http.RoundTripper
	serialize bool
	now       func() time.Time
	events    *async.Emitter[Event]
	log       zerolog.Logger

	mu     sync.Mutex
	routes map[string]*routeState
}

// NewRouteLimiter wraps next.
func NewRouteLimiter(next http.RoundTripper, opts Options) *RouteLimiter {
	return &RouteLimiter{
		next:      next,
		serialize: opts.SerializeRoutes,
		now:       opts.now(),
		events:    opts.Events,
		log:       opts.logger().With().Str("component", "route_limiter").Logger(),
		routes:    make(map[string]*routeState),
	}
}

// RouteKey returns the rate limit scope of req.
func RouteKey(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return req.Method + " " + u.String()
}

// Window returns the current window of a route.
func (l *RouteLimiter) Window(route string) Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.routes[route]; ok {
		return st.window
	}
	return Window{}
}

func (l *RouteLimiter) state(route string) *routeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.routes[route]
	if !ok {
		st = &routeState{}
		if l.serialize {
			st.sem = async.NewBinarySemaphore()
		}
		l.routes[route] = st
	}
	return st
}

func (l *RouteLimiter) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	route := RouteKey(req)
	st := l.state(route)

	for attempt := 0; ; attempt++ {
		if st.sem != nil {
			if err := st.sem.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, retry, err := l.attempt(ctx, req, route, st, attempt)
		if st.sem != nil {
			st.sem.Release(1)
		}
		if err != nil || !retry {
			return resp, err
		}
	}
}

func (l *RouteLimiter) attempt(ctx context.Context, req *http.Request, route string, st *routeState, attempt int) (*http.Response, bool, error) {
	if err := l.reserve(ctx, route, st); err != nil {
		return nil, false, err
	}

	r, err := replay(req, attempt)
	if err != nil {
		return nil, false, err
	}
	resp, err := l.next.RoundTrip(r)
	if err != nil {
		return nil, false, err
	}
	l.sync(route, st, resp.Header)

	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, false, nil
	}
	// A 429 without the IsGlobal flag is treated as route scoped.
	if global, _ := isGlobal(resp.Header); global {
		return resp, false, nil
	}

	resetAt := l.limited(st, resp.Header)
	l.log.Warn().Str("route", route).Time("resets_at", resetAt).Msg("Route rate limit hit, retrying after reset")
	emit(l.events, RateLimited{Route: route, ResetAt: resetAt})
	discard(resp)

	if err := async.Delay(ctx, resetAt.Sub(l.now())); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

// reserve charges the route window, delaying until the reset while it is empty.
func (l *RouteLimiter) reserve(ctx context.Context, route string, st *routeState) error {
	for {
		l.mu.Lock()
		now := l.now()
		st.window = st.window.Advance(now)
		w, ok := st.window.Consume()
		if ok {
			st.window = w
			l.mu.Unlock()
			return nil
		}
		until := st.window.ResetAt
		l.mu.Unlock()

		l.log.Debug().Str("route", route).Time("until", until).Msg("Route budget spent, deferring request")
		emit(l.events, RequestDeferred{Route: route, Until: until})
		if err := async.Delay(ctx, until.Sub(now)); err != nil {
			return err
		}
	}
}

// sync replaces the route window when the server reports different limits.
// The request that carried the headers counts against the new window.
func (l *RouteLimiter) sync(route string, st *routeState, h http.Header) {
	limit, period, ok := parseWindow(h, knet.HeaderRouteLimit, knet.HeaderRouteWindow)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st.window.Matches(limit, period) {
		return
	}
	l.log.Debug().Str("route", route).Int("limit", limit).Dur("window", period).Msg("Route window resynchronized")
	st.window, _ = NewWindow(limit, period, l.now()).Consume()
}

// limited empties the route window until the reset reported with a 429.
func (l *RouteLimiter) limited(st *routeState, h http.Header) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	resetAt, ok := resetsAt(h)
	if !ok {
		switch {
		case !st.window.IsZero() && st.window.ResetAt.After(now):
			resetAt = st.window.ResetAt
		case !st.window.IsZero():
			resetAt = now.Add(st.window.Period)
		default:
			resetAt = now.Add(time.Second)
		}
	}
	if !st.window.IsZero() {
		st.window = st.window.Exhaust(resetAt)
	}
	return resetAt
}
