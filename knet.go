package knet

import (
	"context"

	"github.com/luciancaetano/knet/internal/protocol"
)

// GatewaySession is a persistent real-time session over WebSocket.
//
// Example usage:
//
//	gw := ws.NewGateway(cfg)
//	if err := gw.Connect(ctx, ""); err != nil {
//	    return err
//	}
//	defer gw.Disconnect(context.Background())
//
//	gw.UpdatePresence(ctx, protocol.Presence{Status: protocol.PresenceBusy})
type GatewaySession interface {
	// Connect opens the session. A non-empty sessionID resumes an earlier
	// session instead of starting a new one.
	//
	// Returns ErrAddressRequired or ErrIntentsRequired when the client is
	// misconfigured, and ErrAlreadyConnected while a session is open.
	Connect(ctx context.Context, sessionID string) error

	// Disconnect requests an orderly close and waits until both pipelines
	// have stopped or ctx ends.
	Disconnect(ctx context.Context) error

	// UpdatePresence queues a presence update behind every payload already
	// queued and waits until it has been written to the socket.
	//
	// Returns ErrNotConnected when no session is open or the session ends
	// before the payload is written.
	UpdatePresence(ctx context.Context, presence protocol.Presence) error

	// SessionID returns the id reported by the last Ready event, or the id
	// passed to Connect when resuming.
	SessionID() string

	// Done returns a channel that is closed when the current session ends.
	// It returns a closed channel when no session is open.
	Done() <-chan struct{}
}

// Requester issues REST calls through the rate limiting pipeline.
type Requester interface {
	// Do sends in as a JSON body to route (relative to the base URL) and
	// decodes the JSON response into out. Either may be nil.
	Do(ctx context.Context, method, route string, in, out any) error
}
