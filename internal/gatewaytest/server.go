// Package gatewaytest runs an in-process gateway server for tests. It accepts
// the same handshake real clients send and lets a test drive each connected
// peer by hand.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/protocol"
	knetws "github.com/luciancaetano/knet/internal/websocket"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingPeriod   = 54 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithRateLimit closes peers with 1008 once they send faster than cfg allows.
func WithRateLimit(cfg *knetws.RateLimitConfig) Option {
	return func(s *Server) { s.rateLimitConfig = cfg }
}

// WithOnConnect registers a callback run after the handshake and before the
// peer's read loop starts.
func WithOnConnect(fn func(*Peer)) Option {
	return func(s *Server) { s.onConnect = fn }
}

// WithLogger sets the server logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Server is a fake gateway listening on a local httptest server.
type Server struct {
	http            *httptest.Server
	upgrader        websocket.Upgrader
	peers           sync.Map // map[string]*Peer
	connections     chan *Peer
	rateLimitConfig *knetws.RateLimitConfig
	onConnect       func(*Peer)
	log             zerolog.Logger
}

// NewServer starts a fake gateway. Close it when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		connections:     make(chan *Peer, 16),
		rateLimitConfig: knetws.NoRateLimit(),
		log:             zerolog.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "gatewaytest").Logger()

	mux := http.NewServeMux()
	mux.HandleFunc("/gateway", s.handleWebSocket)
	s.http = httptest.NewServer(mux)
	return s
}

// URL returns the ws:// address of the gateway endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/gateway"
}

// Close disconnects every peer and stops the listener.
func (s *Server) Close() {
	s.peers.Range(func(key, value any) bool {
		value.(*Peer).Abort()
		return true
	})
	s.http.Close()
}

// Accept waits for the next peer to finish its handshake.
func (s *Server) Accept(ctx context.Context) (*Peer, error) {
	select {
	case p := <-s.connections:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peers returns the currently connected peers.
func (s *Server) Peers() []*Peer {
	var out []*Peer
	s.peers.Range(func(key, value any) bool {
		out = append(out, value.(*Peer))
		return true
	})
	return out
}

// Broadcast sends p to every connected peer.
func (s *Server) Broadcast(ctx context.Context, p protocol.Payload) error {
	var firstErr error
	s.peers.Range(func(key, value any) bool {
		if err := value.(*Peer).Send(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// handshake extracts the connection headers from the subprotocol slot or,
// when none is offered, from the HTTP headers.
func handshake(r *http.Request) (headers map[string]string, subprotocol string, err error) {
	for _, proto := range websocket.Subprotocols(r) {
		if strings.HasPrefix(proto, protocol.HandshakePrefix) {
			headers, err := protocol.DecodeHandshake(proto)
			return headers, proto, err
		}
	}

	headers = make(map[string]string)
	for _, key := range []string{knet.HeaderIntents, knet.HeaderAuthorization, knet.HeaderPresence, knet.HeaderSessionID} {
		if v := r.Header.Get(key); v != "" {
			headers[key] = v
		}
	}
	return headers, "", nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	headers, subprotocol, err := handshake(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if headers[knet.HeaderIntents] == "" {
		http.Error(w, fmt.Sprintf("%s header is required", knet.HeaderIntents), http.StatusBadRequest)
		return
	}

	var responseHeader http.Header
	if subprotocol != "" {
		responseHeader = http.Header{"Sec-Websocket-Protocol": {subprotocol}}
	}
	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade already replied to the client.
		s.log.Debug().Err(err).Msg("Upgrade failed")
		return
	}

	peer := newPeer(conn, headers, s.rateLimitConfig)
	s.peers.Store(peer.ID(), peer)
	s.log.Debug().Str("peer", peer.ID()).Msg("Peer connected")

	go s.handlePeer(peer)
}

// handlePeer reads from a peer until it disconnects.
func (s *Server) handlePeer(peer *Peer) {
	defer func() {
		s.peers.Delete(peer.ID())
		peer.finish()
		s.log.Debug().Str("peer", peer.ID()).Int("close_code", peer.CloseCode()).Msg("Peer disconnected")
	}()

	peer.conn.SetReadDeadline(time.Now().Add(readTimeout))
	peer.conn.SetPongHandler(func(string) error {
		peer.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	if s.onConnect != nil {
		s.onConnect(peer)
	}
	select {
	case s.connections <- peer:
	default:
		s.log.Debug().Str("peer", peer.ID()).Msg("Accept queue full, peer not announced")
	}

	for {
		mt, data, err := peer.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				peer.recordClose(ce.Code)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug().Err(err).Msg("Unexpected close")
			}
			return
		}
		peer.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if !peer.limiter.Allow() {
			s.log.Warn().Str("peer", peer.ID()).Msg("Rate limit exceeded")
			peer.Close(websocket.ClosePolicyViolation, "Rate limit exceeded")
			return
		}

		if mt != websocket.TextMessage {
			peer.Close(websocket.CloseUnsupportedData, "text messages only")
			return
		}
		p, err := protocol.Decode(data)
		if err != nil {
			peer.Close(websocket.CloseInvalidFramePayloadData, "invalid payload")
			return
		}
		peer.received <- *p
	}
}
