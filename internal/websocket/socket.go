package websocket

import (
	"context"
	"fmt"
)

// MessageType classifies a frame.
type MessageType int

const (
	MessageText MessageType = iota
	MessageBinary
	MessageClose
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	case MessageClose:
		return "close"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Frame is one unit read from or written to a RawSocket. A message may span
// several frames; only the last one has EndOfMessage set. Close frames carry
// the peer's close code and reason.
type Frame struct {
	Type         MessageType
	Data         []byte
	EndOfMessage bool
	CloseCode    int
	CloseReason  string
}

// RawSocket is the frame-level transport a Conn is built on.
//
// ReadFrame is only ever called from one goroutine. WriteFrame and WriteClose
// may be called concurrently with ReadFrame but not with each other.
type RawSocket interface {
	// ReadFrame blocks until the next frame arrives. A close frame from the
	// peer is returned as a Frame of type MessageClose, not as an error.
	ReadFrame(ctx context.Context) (Frame, error)

	// WriteFrame writes one complete message.
	WriteFrame(ctx context.Context, f Frame) error

	// WriteClose sends a close frame without closing the transport.
	WriteClose(code int, reason string) error

	// BufferedAmount reports how many bytes are queued but not yet sent.
	BufferedAmount() int

	// Close tears the transport down immediately.
	Close() error
}
