package websocket

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
)

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateCloseSent
	StateCloseReceived
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateCloseSent:
		return "CloseSent"
	case StateCloseReceived:
		return "CloseReceived"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const sendPollInterval = 5 * time.Millisecond

// ReceiveResult describes what one Receive call copied into its buffer.
type ReceiveResult struct {
	Count        int
	Type         MessageType
	EndOfMessage bool
	CloseCode    int
	CloseReason  string
}

// Message is a fully reassembled inbound message.
type Message struct {
	Type        MessageType
	Data        []byte
	CloseCode   int
	CloseReason string
}

type inboundFrame struct {
	Frame
	offset int
}

type pendingReceive struct {
	buf    []byte
	result *async.Future[ReceiveResult]
}

// Conn reassembles frames read from a RawSocket into messages and tracks the
// close handshake.
//
// Inbound frames are queued with a read cursor. A Receive call is served from
// the head of that queue, possibly partially, or parked until the next frame
// arrives. Queued frames and parked receives are never both non-empty.
type Conn struct {
	socket RawSocket
	log    zerolog.Logger

	mu          sync.Mutex
	state       State
	frames      []*inboundFrame
	receives    []*pendingReceive
	closeCode   int
	closeReason string

	closed *async.Future[struct{}]
}

// NewConn takes ownership of an open socket and starts reading from it.
func NewConn(socket RawSocket, log zerolog.Logger) *Conn {
	c := &Conn{
		socket: socket,
		log:    log.With().Str("component", "websocket").Logger(),
		state:  StateOpen,
		closed: async.NewFuture[struct{}](),
	}
	go c.readPump()
	return c
}

// Dial connects to url through gorilla and wraps the result in a Conn.
func Dial(ctx context.Context, url string, opts DialOptions, log zerolog.Logger) (*Conn, error) {
	socket, err := DialSocket(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return NewConn(socket, log), nil
}

// State returns the current lifecycle stage.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel that is closed once the connection reaches StateClosed.
func (c *Conn) Done() <-chan struct{} {
	return c.closed.Done()
}

// CloseStatus returns the close code and reason recorded when the connection
// closed. The code is zero while the connection is not closed.
func (c *Conn) CloseStatus() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

func (c *Conn) readPump() {
	for {
		f, err := c.socket.ReadFrame(context.Background())
		if err != nil {
			c.log.Debug().Err(err).Msg("Read failed, treating as abnormal closure")
			c.finish(knet.CloseAbnormal, err.Error())
			return
		}

		if f.Type != MessageClose {
			c.mu.Lock()
			c.frames = append(c.frames, &inboundFrame{Frame: f})
			c.pairLocked()
			c.mu.Unlock()
			continue
		}

		c.mu.Lock()
		if c.state == StateOpen {
			c.state = StateCloseReceived
			if err := c.socket.WriteClose(f.CloseCode, ""); err != nil {
				c.log.Debug().Err(err).Msg("Failed to echo close frame")
			}
		}
		c.frames = append(c.frames, &inboundFrame{Frame: f})
		c.pairLocked()
		c.mu.Unlock()

		c.finish(f.CloseCode, f.CloseReason)
		return
	}
}

// finish moves the connection to StateClosed. Frames still queued stay
// readable; parked receives are answered with the close status.
func (c *Conn) finish(code int, reason string) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.closeCode = code
	c.closeReason = reason
	parked := c.receives
	c.receives = nil
	res := c.closedResult()
	c.mu.Unlock()

	for _, r := range parked {
		r.result.Resolve(res)
	}
	c.closed.Resolve(struct{}{})
	if err := c.socket.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Failed to close socket")
	}
	c.log.Debug().Int("code", code).Str("reason", reason).Msg("Connection closed")
}

func (c *Conn) closedResult() ReceiveResult {
	return ReceiveResult{Type: MessageClose, EndOfMessage: true, CloseCode: c.closeCode, CloseReason: c.closeReason}
}

// pairLocked serves parked receives from queued frames until one side is empty.
func (c *Conn) pairLocked() {
	for len(c.frames) > 0 && len(c.receives) > 0 {
		r := c.receives[0]
		c.receives = c.receives[1:]
		r.result.Resolve(c.takeLocked(r.buf))
	}
}

// takeLocked copies from the head frame into buf, dequeuing the frame once
// it is drained.
func (c *Conn) takeLocked(buf []byte) ReceiveResult {
	f := c.frames[0]
	n := copy(buf, f.Data[f.offset:])
	f.offset += n

	drained := f.offset == len(f.Data)
	if drained {
		c.frames[0] = nil
		c.frames = c.frames[1:]
	}
	return ReceiveResult{
		Count:        n,
		Type:         f.Type,
		EndOfMessage: drained && f.EndOfMessage,
		CloseCode:    f.CloseCode,
		CloseReason:  f.CloseReason,
	}
}

// Receive copies the next available bytes into buf. EndOfMessage is set on
// the call that drains the last frame of a message. Once the connection has
// closed and every queued frame is drained, Receive returns a close result
// instead of an error.
func (c *Conn) Receive(ctx context.Context, buf []byte) (ReceiveResult, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		res := c.takeLocked(buf)
		c.mu.Unlock()
		return res, nil
	}
	if c.state == StateClosed {
		res := c.closedResult()
		c.mu.Unlock()
		return res, nil
	}
	pr := &pendingReceive{buf: buf, result: async.NewFuture[ReceiveResult]()}
	c.receives = append(c.receives, pr)
	c.mu.Unlock()

	res, err := pr.result.Wait(ctx)
	if err == nil {
		return res, nil
	}

	c.mu.Lock()
	idx := slices.Index(c.receives, pr)
	if idx >= 0 {
		c.receives = slices.Delete(c.receives, idx, idx+1)
	}
	c.mu.Unlock()
	if idx < 0 {
		// Served or dequeued by finish while we were giving up; keep the data.
		<-pr.result.Done()
		return pr.result.Result()
	}
	return ReceiveResult{}, err
}

// ReadMessage loops Receive into a growing buffer until a whole message has
// arrived. A close frame ends the loop early and is returned as a message of
// type MessageClose.
func (c *Conn) ReadMessage(ctx context.Context) (Message, error) {
	buf := make([]byte, 0, frameSize)
	for {
		if len(buf) == cap(buf) {
			buf = slices.Grow(buf, cap(buf))
		}
		res, err := c.Receive(ctx, buf[len(buf):cap(buf)])
		if err != nil {
			return Message{}, err
		}
		if res.Type == MessageClose {
			return Message{Type: MessageClose, CloseCode: res.CloseCode, CloseReason: res.CloseReason}, nil
		}
		buf = buf[:len(buf)+res.Count]
		if res.EndOfMessage {
			return Message{Type: res.Type, Data: buf}, nil
		}
	}
}

// Send writes data as one complete message and waits until the socket has
// flushed it.
func (c *Conn) Send(ctx context.Context, data []byte, typ MessageType, endOfMessage bool) error {
	if !endOfMessage {
		return knet.ErrFragmentedSend
	}
	if typ == MessageClose {
		return fmt.Errorf("use Close to send a close frame")
	}
	if c.State() != StateOpen {
		return knet.ErrConnectionClosed
	}

	if err := c.socket.WriteFrame(ctx, Frame{Type: typ, Data: data, EndOfMessage: true}); err != nil {
		return fmt.Errorf("write %s message: %w", typ, err)
	}

	if c.socket.BufferedAmount() == 0 {
		return nil
	}
	ticker := time.NewTicker(sendPollInterval)
	defer ticker.Stop()
	for c.socket.BufferedAmount() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close starts the close handshake with code and reason and waits for the
// peer's reply. When ctx ends first the transport is torn down.
func (c *Conn) Close(ctx context.Context, code int, reason string) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return nil
	case StateOpen, StateConnecting:
		c.state = StateCloseSent
		err := c.socket.WriteClose(code, reason)
		c.mu.Unlock()
		if err != nil {
			c.finish(knet.CloseAbnormal, err.Error())
			return fmt.Errorf("send close frame: %w", err)
		}
	default:
		c.mu.Unlock()
	}

	if _, err := c.closed.Wait(ctx); err != nil {
		c.finish(code, reason)
		return err
	}
	return nil
}

// Abort tears the transport down without a close handshake.
func (c *Conn) Abort() {
	c.finish(knet.CloseAbnormal, "aborted")
}
