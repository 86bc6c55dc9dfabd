package gatewaytest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/protocol"
	knetws "github.com/luciancaetano/knet/internal/websocket"
)

type outgoing struct {
	messageType int
	data        []byte
}

// Peer is one client connected to the fake gateway.
type Peer struct {
	id       string
	conn     *websocket.Conn
	headers  map[string]string
	limiter  *rate.Limiter
	sendCh   chan outgoing
	received chan protocol.Payload

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closeCode int
}

func newPeer(conn *websocket.Conn, headers map[string]string, rateLimitConfig *knetws.RateLimitConfig) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		id:       uuid.New().String(),
		conn:     conn,
		headers:  headers,
		limiter:  rateLimitConfig.NewLimiter(),
		sendCh:   make(chan outgoing, 256),
		received: make(chan protocol.Payload, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
	go p.writePump()
	return p
}

// ID returns the peer's unique identifier.
func (p *Peer) ID() string {
	return p.id
}

// Header returns a handshake header sent by the client.
func (p *Peer) Header(key string) string {
	return p.headers[key]
}

// Headers returns every handshake header sent by the client.
func (p *Peer) Headers() map[string]string {
	out := make(map[string]string, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out
}

// Received yields every payload the client sent, in order.
func (p *Peer) Received() <-chan protocol.Payload {
	return p.received
}

// Done is closed once the peer has disconnected.
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// CloseCode returns the code of the close frame the client sent, or zero.
func (p *Peer) CloseCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCode
}

func (p *Peer) recordClose(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCode = code
}

// Send writes a payload as one text message.
func (p *Peer) Send(ctx context.Context, payload protocol.Payload) error {
	data, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	return p.SendRaw(ctx, websocket.TextMessage, data)
}

// Dispatch sends a Dispatch payload for event with data.
func (p *Peer) Dispatch(ctx context.Context, event protocol.EventName, data any) error {
	payload, err := protocol.NewDispatch(event, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, payload)
}

// SendRaw writes data with the given gorilla message type, bypassing encoding.
func (p *Peer) SendRaw(ctx context.Context, messageType int, data []byte) error {
	select {
	case p.sendCh <- outgoing{messageType: messageType, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return knet.ErrConnectionClosed
	}
}

// Close sends a close frame. The connection is torn down once the client
// answers or the read deadline passes.
func (p *Peer) Close(code int, reason string) error {
	message := websocket.FormatCloseMessage(code, reason)
	return p.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
}

// Abort drops the connection without a close handshake.
func (p *Peer) Abort() {
	p.finish()
}

func (p *Peer) finish() {
	p.cancel()
	p.conn.Close()
}

// writePump pumps messages from the send channel to the websocket connection
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-p.sendCh:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}
