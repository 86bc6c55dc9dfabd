package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
)

const maxErrorBody = 4096

// Config configures a REST client.
type Config struct {
	// BaseURL is prefixed to every route.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds each call including retries. Zero means no timeout.
	Timeout time.Duration
	// Transport configures the rate limiting pipeline. Its Events and
	// Logger fields are filled in by NewClient when empty.
	Transport Options
	// Logger receives client logs. Nil disables logging.
	Logger *zerolog.Logger
}

// StatusError is returned for responses with a 4xx status. 429 and 5xx are
// retried by the pipeline and only surface through context errors.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client sends JSON requests through the rate limiting pipeline.
type Client struct {
	base       *url.URL
	token      string
	http       *http.Client
	transport  *Transport
	events     *async.Emitter[Event]
	ownsEvents bool
	log        zerolog.Logger
}

// NewClient builds a client and its transport chain.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	opts := cfg.Transport
	ownsEvents := opts.Events == nil
	if ownsEvents {
		opts.Events = async.NewEmitter[Event]()
	}
	if opts.Logger == nil {
		opts.Logger = &log
	}

	transport := NewTransport(opts)
	return &Client{
		base:       base,
		token:      cfg.Token,
		http:       &http.Client{Transport: transport, Timeout: cfg.Timeout},
		transport:  transport,
		events:     opts.Events,
		ownsEvents: ownsEvents,
		log:        log.With().Str("component", "rest").Logger(),
	}, nil
}

// Close disposes the rate limiting pipeline. Requests waiting on the global
// limiter and every later call fail with async.ErrDisposed. Listeners are
// dropped unless the emitter was supplied through Config.Transport.
func (c *Client) Close() {
	c.transport.Close()
	if c.ownsEvents {
		c.events.Close()
	}
}

// On registers fn for RateLimited or RequestDeferred events.
func (c *Client) On(ctx context.Context, name string, fn func(Event)) (async.ListenerID, error) {
	return c.events.On(ctx, name, fn)
}

// Do sends in as JSON to route and decodes the response into out. Either may
// be nil.
func (c *Client) Do(ctx context.Context, method, route string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", knet.ErrMsgFailedToEncode, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+"/"+strings.TrimLeft(route, "/"), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", knet.ContentTypeJSON)
	if in != nil {
		req.Header.Set(knet.HeaderContentType, knet.ContentTypeJSON)
	}
	if c.token != "" {
		req.Header.Set(knet.HeaderAuthorization, knet.AuthorizationPrefix+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug().Str("method", method).Str("route", route).Int("status", resp.StatusCode).Msg("Request failed")
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, route, err)
	}
	return nil
}
