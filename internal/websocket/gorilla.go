package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// frameSize bounds the chunks a message is split into when read.
	frameSize    = 4096
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
)

// gorillaSocket adapts a gorilla connection to RawSocket. gorilla hides frame
// boundaries, so each message reader is cut into chunks of at most frameSize.
type gorillaSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	reader     io.Reader
	readerType MessageType
	buf        []byte
}

// NewRawSocket wraps an established gorilla connection.
func NewRawSocket(conn *websocket.Conn) RawSocket {
	// Replies to close frames are sent by Conn, not by gorilla.
	conn.SetCloseHandler(func(int, string) error { return nil })
	return &gorillaSocket{conn: conn, buf: make([]byte, frameSize)}
}

func (s *gorillaSocket) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	if s.reader == nil {
		mt, r, err := s.conn.NextReader()
		if err != nil {
			return closeFrameFrom(err)
		}
		s.reader = r
		s.readerType = MessageText
		if mt == websocket.BinaryMessage {
			s.readerType = MessageBinary
		}
	}

	n, err := io.ReadFull(s.reader, s.buf)
	f := Frame{Type: s.readerType, Data: append([]byte(nil), s.buf[:n]...)}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		f.EndOfMessage = true
		s.reader = nil
	default:
		s.reader = nil
		return closeFrameFrom(err)
	}
	return f, nil
}

func closeFrameFrom(err error) (Frame, error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return Frame{Type: MessageClose, EndOfMessage: true, CloseCode: ce.Code, CloseReason: ce.Text}, nil
	}
	return Frame{}, err
}

func (s *gorillaSocket) WriteFrame(ctx context.Context, f Frame) error {
	var mt int
	switch f.Type {
	case MessageText:
		mt = websocket.TextMessage
	case MessageBinary:
		mt = websocket.BinaryMessage
	default:
		return fmt.Errorf("cannot write %s frame as data", f.Type)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(mt, f.Data)
}

func (s *gorillaSocket) WriteClose(code int, reason string) error {
	message := websocket.FormatCloseMessage(code, reason)
	return s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeTimeout))
}

// BufferedAmount is always zero: gorilla writes synchronously.
func (s *gorillaSocket) BufferedAmount() int {
	return 0
}

func (s *gorillaSocket) Close() error {
	return s.conn.Close()
}

// DialOptions configures Dial.
type DialOptions struct {
	// Subprotocols are offered in the opening handshake.
	Subprotocols []string
	// Header is sent with the opening handshake.
	Header http.Header
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// DialSocket opens a WebSocket connection to url and returns it as a RawSocket.
func DialSocket(ctx context.Context, url string, opts DialOptions) (RawSocket, error) {
	dialer := *websocket.DefaultDialer
	if opts.Dialer != nil {
		dialer = *opts.Dialer
	}
	if len(opts.Subprotocols) > 0 {
		dialer.Subprotocols = opts.Subprotocols
	}

	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewRawSocket(conn), nil
}
