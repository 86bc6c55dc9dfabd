package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
	"github.com/luciancaetano/knet/internal/protocol"
	"github.com/luciancaetano/knet/internal/websocket"
)

const closeTimeout = 5 * time.Second

// Config configures a gateway client.
type Config struct {
	// Address is the WebSocket URL of the gateway.
	Address string
	// Intents selects the event categories to receive. At least one is required.
	Intents Intents
	// Token is sent as a bearer token when set.
	Token string
	// Presence is announced when the session opens.
	Presence *protocol.Presence
	// NativeHeaders sends the handshake as HTTP headers instead of packing it
	// into the subprotocol.
	NativeHeaders bool
	// RateLimit throttles outbound payloads. Nil means DefaultRateLimitConfig.
	RateLimit *websocket.RateLimitConfig
	// Dialer overrides gorilla's default dialer.
	Dialer *gorilla.Dialer
	// Logger receives client logs. Nil disables logging.
	Logger *zerolog.Logger
}

// request is one queued outbound payload.
type request struct {
	id      string
	payload []byte
	done    *async.Future[struct{}]
}

// session is the state of one open connection.
type session struct {
	id       string
	conn     *websocket.Conn
	outbound *async.Unbounded[*request]
	done     *async.Future[struct{}]
	log      zerolog.Logger
}

// Client runs one gateway session at a time: the handshake, an inbound
// dispatch loop, an outbound send loop fed by an unbounded channel, and a
// typed event surface.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	events  *async.Emitter[Event]
	limiter *rate.Limiter

	mu        sync.Mutex
	current   *session
	dialing   bool
	sessionID string
}

// New creates a disconnected client.
func New(cfg Config) *Client {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = websocket.DefaultRateLimitConfig()
	}
	return &Client{
		cfg:     cfg,
		log:     log.With().Str("component", "gateway").Logger(),
		events:  async.NewEmitter[Event](),
		limiter: cfg.RateLimit.NewLimiter(),
	}
}

// On registers fn for events published under name.
func (c *Client) On(ctx context.Context, name string, fn func(Event)) (async.ListenerID, error) {
	return c.events.On(ctx, name, fn)
}

// Remove unregisters a listener.
func (c *Client) Remove(ctx context.Context, id async.ListenerID) (bool, error) {
	return c.events.Remove(ctx, id)
}

// Subscribe registers a listener for one event type.
//
//	gateway.Subscribe(ctx, c, func(e *gateway.MessageCreated) { ... })
func Subscribe[E Event](ctx context.Context, c *Client, fn func(E)) (async.ListenerID, error) {
	var zero E
	return c.events.On(ctx, zero.EventName(), func(e Event) {
		if v, ok := e.(E); ok {
			fn(v)
		}
	})
}

// State returns the state of the underlying connection.
func (c *Client) State() websocket.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialing {
		return websocket.StateConnecting
	}
	if c.current == nil {
		return websocket.StateClosed
	}
	return c.current.conn.State()
}

// SessionID returns the id of the last Ready event or resumed session.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done returns a channel that is closed when the current session ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return closedChan
	}
	return c.current.done.Done()
}

// Connect opens a session. A non-empty sessionID resumes that session.
func (c *Client) Connect(ctx context.Context, sessionID string) error {
	if c.cfg.Address == "" {
		return knet.ErrAddressRequired
	}
	if c.cfg.Intents == 0 {
		return knet.ErrIntentsRequired
	}

	c.mu.Lock()
	if c.current != nil || c.dialing {
		c.mu.Unlock()
		return knet.ErrAlreadyConnected
	}
	c.dialing = true
	c.mu.Unlock()

	s, err := c.open(ctx, sessionID)

	c.mu.Lock()
	c.dialing = false
	if err == nil {
		c.current = s
		if sessionID != "" {
			c.sessionID = sessionID
		}
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	s.log.Info().Str("address", c.cfg.Address).Bool("resume", sessionID != "").Msg("Gateway session opened")
	if sessionID != "" {
		c.events.Emit(EventResumed, &Resumed{eventBase: eventBase{c}, SessionID: sessionID})
	}

	var (
		wg        sync.WaitGroup
		closeCode int
		loopErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		closeCode, loopErr = c.receiveLoop(s)
	}()
	go func() {
		defer wg.Done()
		c.sendLoop(s)
	}()
	go func() {
		wg.Wait()
		c.teardown(s, closeCode, loopErr)
	}()
	return nil
}

func (c *Client) open(ctx context.Context, sessionID string) (*session, error) {
	headers, err := c.handshakeHeaders(sessionID)
	if err != nil {
		return nil, err
	}

	opts := websocket.DialOptions{Dialer: c.cfg.Dialer}
	if c.cfg.NativeHeaders {
		opts.Header = http.Header{}
		for k, v := range headers {
			opts.Header.Set(k, v)
		}
	} else {
		value, err := protocol.EncodeHandshake(headers)
		if err != nil {
			return nil, err
		}
		opts.Subprotocols = []string{value}
	}

	id := uuid.NewString()
	log := c.log.With().Str("session", id).Logger()
	conn, err := websocket.Dial(ctx, c.cfg.Address, opts, log)
	if err != nil {
		return nil, fmt.Errorf("connect gateway: %w", err)
	}
	return &session{
		id:       id,
		conn:     conn,
		outbound: async.NewUnbounded[*request](),
		done:     async.NewFuture[struct{}](),
		log:      log,
	}, nil
}

func (c *Client) handshakeHeaders(sessionID string) (map[string]string, error) {
	headers := map[string]string{
		knet.HeaderIntents: strconv.FormatUint(uint64(c.cfg.Intents), 10),
	}
	if c.cfg.Token != "" {
		headers[knet.HeaderAuthorization] = knet.AuthorizationPrefix + c.cfg.Token
	}
	if c.cfg.Presence != nil {
		if err := c.cfg.Presence.Validate(); err != nil {
			return nil, fmt.Errorf("invalid presence: %w", err)
		}
		raw, err := json.Marshal(c.cfg.Presence)
		if err != nil {
			return nil, err
		}
		headers[knet.HeaderPresence] = string(raw)
	}
	if sessionID != "" {
		headers[knet.HeaderSessionID] = sessionID
	}
	return headers, nil
}

// receiveLoop reads messages until the connection closes. It returns the
// close code it chose and, for unexpected failures, the error to surface on
// Disconnected.
func (c *Client) receiveLoop(s *session) (int, error) {
	defer s.outbound.Complete()

	for {
		msg, err := s.conn.ReadMessage(context.Background())
		if err != nil {
			c.closeSession(s, knet.CloseInternalError, "receive failed")
			return knet.CloseInternalError, err
		}

		switch msg.Type {
		case websocket.MessageClose:
			s.log.Debug().Int("code", msg.CloseCode).Str("reason", msg.CloseReason).Msg("Server closed the session")
			c.closeSession(s, knet.CloseNormal, "")
			return msg.CloseCode, nil
		case websocket.MessageBinary:
			s.log.Warn().Msg("Binary message received, closing session")
			c.closeSession(s, knet.CloseUnsupportedData, "binary messages are not supported")
			return knet.CloseUnsupportedData, nil
		}

		if err := c.dispatch(s, msg.Data); err != nil {
			if errors.Is(err, protocol.ErrInvalidPayload) {
				s.log.Warn().Err(err).Msg("Invalid payload, closing session")
				c.closeSession(s, knet.CloseInvalidPayload, "invalid payload")
				return knet.CloseInvalidPayload, nil
			}
			s.log.Error().Err(err).Msg("Receive loop failed, closing session")
			c.closeSession(s, knet.CloseInternalError, "internal error")
			return knet.CloseInternalError, err
		}
	}
}

func (c *Client) dispatch(s *session, data []byte) (err error) {
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: message is not valid UTF-8", protocol.ErrInvalidPayload)
	}
	p, err := protocol.Decode(data)
	if err != nil {
		return err
	}

	switch p.Operation {
	case protocol.OpHello:
		s.log.Debug().Msg("Hello received")
		return nil
	case protocol.OpDispatch:
	default:
		return nil
	}

	decode, ok := decoders[p.Event]
	if !ok {
		s.log.Debug().Str("event", string(p.Event)).Msg("Ignoring unknown event")
		return nil
	}
	event, err := decode(eventBase{c}, p.Data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", p.Event, err)
	}
	if ready, ok := event.(*Ready); ok {
		c.mu.Lock()
		c.sessionID = ready.SessionID
		c.mu.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener for %s panicked: %v", p.Event, r)
		}
	}()
	c.events.Emit(string(p.Event), event)
	return nil
}

// sendLoop writes queued payloads in order until the outbound channel is
// completed, then rejects whatever is left.
func (c *Client) sendLoop(s *session) {
	ctx := context.Background()
	for {
		ok, err := s.outbound.WaitToRead(ctx)
		if err != nil || !ok {
			break
		}
		req, err := s.outbound.Read()
		if err != nil {
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			req.done.Reject(err)
			continue
		}
		if err := s.conn.Send(ctx, req.payload, websocket.MessageText, true); err != nil {
			s.log.Debug().Err(err).Str("request", req.id).Msg("Send failed")
			req.done.Reject(fmt.Errorf("%w: %v", knet.ErrNotConnected, err))
			continue
		}
		req.done.Resolve(struct{}{})
	}

	for {
		req, ok := s.outbound.TryRead()
		if !ok {
			return
		}
		req.done.Reject(knet.ErrNotConnected)
	}
}

func (c *Client) closeSession(s *session, code int, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.conn.Close(ctx, code, reason); err != nil {
		s.log.Debug().Err(err).Msg("Close handshake did not complete")
	}
}

func (c *Client) teardown(s *session, code int, err error) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()

	s.done.Resolve(struct{}{})
	s.log.Info().Int("code", code).Err(err).Msg("Gateway session closed")
	c.events.Emit(EventDisconnected, &Disconnected{eventBase: eventBase{c}, CloseCode: code, Err: err})
}

// UpdatePresence queues a presence update and waits until it has been sent.
func (c *Client) UpdatePresence(ctx context.Context, presence protocol.Presence) error {
	if err := presence.Validate(); err != nil {
		return fmt.Errorf("invalid presence: %w", err)
	}
	p, err := protocol.NewDispatch(protocol.EventUpdatePresence, presence)
	if err != nil {
		return err
	}
	return c.send(ctx, p)
}

func (c *Client) send(ctx context.Context, p protocol.Payload) error {
	data, err := protocol.Encode(p)
	if err != nil {
		return fmt.Errorf("%s: %w", knet.ErrMsgFailedToEncode, err)
	}

	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return knet.ErrNotConnected
	}

	req := &request{id: uuid.NewString(), payload: data, done: async.NewFuture[struct{}]()}
	if err := s.outbound.Write(req); err != nil {
		return knet.ErrNotConnected
	}
	_, err = req.done.Wait(ctx)
	return err
}

// Disconnect closes the session normally and waits for both loops to stop.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	if err := s.conn.Close(ctx, knet.CloseNormal, ""); err != nil {
		return err
	}
	_, err := s.done.Wait(ctx)
	return err
}

// Close disconnects and releases every listener.
func (c *Client) Close(ctx context.Context) error {
	err := c.Disconnect(ctx)
	c.events.Close()
	return err
}
