package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/knet/internal/async"
)

const (
	DefaultRetryInitialBackoff = 100 * time.Millisecond
	DefaultRetryMaxBackoff     = 51200 * time.Millisecond
)

// ErrBodyNotReplayable is returned when a request must be retried but its
// body cannot be read a second time.
var ErrBodyNotReplayable = errors.New("request body cannot be replayed")

// Options configures the rate limiting pipeline.
type Options struct {
	// Base is the terminal transport. Nil means http.DefaultTransport.
	Base http.RoundTripper
	// SerializeRoutes sends at most one request per route at a time.
	SerializeRoutes bool
	// RetryInitialBackoff is the first 5xx retry delay. Zero means 100ms.
	RetryInitialBackoff time.Duration
	// RetryMaxBackoff caps the 5xx retry delay. Zero means 51.2s.
	RetryMaxBackoff time.Duration
	// Events receives RateLimited and RequestDeferred. May be nil.
	Events *async.Emitter[Event]
	// Logger receives pipeline logs. Nil disables logging.
	Logger *zerolog.Logger
	// Now overrides the clock used for rate limit windows.
	Now func() time.Time
}

func (o Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return zerolog.Nop()
}

func (o Options) now() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// Transport is the assembled limiter chain.
type Transport struct {
	head   http.RoundTripper
	global *GlobalLimiter
}

// NewTransport builds the chain RetryHandler -> RouteLimiter -> GlobalLimiter -> base.
func NewTransport(opts Options) *Transport {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	global := NewGlobalLimiter(base, opts)
	route := NewRouteLimiter(global, opts)
	return &Transport{head: NewRetryHandler(route, opts), global: global}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.head.RoundTrip(req)
}

// Global returns the limiter shared by every request.
func (t *Transport) Global() *GlobalLimiter {
	return t.global
}

// Close stops the global replenish timer and fails requests waiting on the
// global gate with async.ErrDisposed.
func (t *Transport) Close() {
	t.global.Close()
}

// replay returns req ready for another attempt, with a fresh body when it has
// one. The first attempt uses req unchanged.
func replay(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}
