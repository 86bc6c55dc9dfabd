package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/knet/internal/async"
)

// RetryHandler retries requests answered with a 5xx status, backing off
// exponentially from the initial delay up to the cap. It never gives up on
// its own; the request context bounds the retries.
type RetryHandler struct {
	next    http.RoundTripper
	initial time.Duration
	max     time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

// NewRetryHandler wraps next.
func NewRetryHandler(next http.RoundTripper, opts Options) *RetryHandler {
	initial := opts.RetryInitialBackoff
	if initial <= 0 {
		initial = DefaultRetryInitialBackoff
	}
	maxBackoff := opts.RetryMaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultRetryMaxBackoff
	}
	if maxBackoff < initial {
		maxBackoff = initial
	}
	return &RetryHandler{
		next:    next,
		initial: initial,
		max:     maxBackoff,
		sleep:   async.Delay,
		log:     opts.logger().With().Str("component", "retry_handler").Logger(),
	}
}

func (h *RetryHandler) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	backoff := h.initial
	for attempt := 0; ; attempt++ {
		r, err := replay(req, attempt)
		if err != nil {
			return nil, err
		}
		resp, err := h.next.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}

		h.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Dur("backoff", backoff).
			Str("url", req.URL.Redacted()).Msg("Server error, retrying")
		discard(resp)

		if err := h.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > h.max {
			backoff = h.max
		}
	}
}
