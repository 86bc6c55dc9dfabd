package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
)

// fakeSocket is an in-memory RawSocket. Frames pushed with deliver are
// returned by ReadFrame; a close sent by the local side is echoed back when
// echoClose is set.
type fakeSocket struct {
	frames    chan Frame
	dead      chan struct{}
	deadOnce  sync.Once
	echoClose bool

	mu       sync.Mutex
	written  []Frame
	closes   []int
	buffered atomic.Int32
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{frames: make(chan Frame, 64), dead: make(chan struct{})}
}

func (s *fakeSocket) deliver(f Frame) {
	s.frames <- f
}

func (s *fakeSocket) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.dead:
		return Frame{}, errors.New("use of closed connection")
	}
}

func (s *fakeSocket) WriteFrame(ctx context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, f)
	return nil
}

func (s *fakeSocket) WriteClose(code int, reason string) error {
	s.mu.Lock()
	s.closes = append(s.closes, code)
	s.mu.Unlock()
	if s.echoClose {
		s.deliver(Frame{Type: MessageClose, EndOfMessage: true, CloseCode: code, CloseReason: reason})
	}
	return nil
}

func (s *fakeSocket) BufferedAmount() int {
	return int(s.buffered.Load())
}

func (s *fakeSocket) Close() error {
	s.deadOnce.Do(func() { close(s.dead) })
	return nil
}

func (s *fakeSocket) closeCodes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.closes...)
}

func (s *fakeSocket) writtenFrames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.written...)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fragments(parts ...string) []Frame {
	frames := make([]Frame, len(parts))
	for i, p := range parts {
		frames[i] = Frame{Type: MessageText, Data: []byte(p), EndOfMessage: i == len(parts)-1}
	}
	return frames
}

// TestReadMessageReassembly tests that a fragmented message is exposed only
// once its last frame arrives, whether the read starts before or after the frames
func TestReadMessageReassembly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		readFirst   bool
		parts       []string
		wantMessage string
	}{
		{name: "frames before read", parts: []string{"hel", "lo ", "world"}, wantMessage: "hello world"},
		{name: "read before frames", readFirst: true, parts: []string{"hel", "lo ", "world"}, wantMessage: "hello world"},
		{name: "single frame", parts: []string{"ping"}, wantMessage: "ping"},
		{name: "empty final frame", readFirst: true, parts: []string{"abc", ""}, wantMessage: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			socket := newFakeSocket()
			conn := NewConn(socket, zerolog.Nop())
			defer conn.Abort()

			ctx := testContext(t)
			got := make(chan Message, 1)
			errs := make(chan error, 1)
			read := func() {
				msg, err := conn.ReadMessage(ctx)
				errs <- err
				got <- msg
			}

			frames := fragments(tt.parts...)
			if tt.readFirst {
				go read()
				for _, f := range frames[:len(frames)-1] {
					socket.deliver(f)
				}
				select {
				case <-got:
					t.Fatal("message exposed before its final frame")
				case <-time.After(50 * time.Millisecond):
				}
				socket.deliver(frames[len(frames)-1])
			} else {
				for _, f := range frames {
					socket.deliver(f)
				}
				go read()
			}

			require.NoError(t, <-errs)
			msg := <-got
			assert.Equal(t, MessageText, msg.Type)
			assert.Equal(t, tt.wantMessage, string(msg.Data))
		})
	}
}

// TestReceivePartialReads tests that a frame larger than the buffer is served
// across several receives and dequeued only once drained
func TestReceivePartialReads(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	conn := NewConn(socket, zerolog.Nop())
	defer conn.Abort()
	ctx := testContext(t)

	socket.deliver(Frame{Type: MessageBinary, Data: []byte("abcdefgh"), EndOfMessage: true})
	socket.deliver(Frame{Type: MessageText, Data: []byte("next"), EndOfMessage: true})

	buf := make([]byte, 3)
	var collected []byte
	for i, wantEnd := range []bool{false, false, true} {
		res, err := conn.Receive(ctx, buf)
		require.NoError(t, err)
		assert.Equal(t, MessageBinary, res.Type, "receive %d", i)
		assert.Equal(t, wantEnd, res.EndOfMessage, "receive %d", i)
		collected = append(collected, buf[:res.Count]...)
	}
	assert.Equal(t, "abcdefgh", string(collected))

	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "next", string(msg.Data))
}

// TestReceiveOrderAcrossWaiters tests that parked receives are served in FIFO order
func TestReceiveOrderAcrossWaiters(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	conn := NewConn(socket, zerolog.Nop())
	defer conn.Abort()
	ctx := testContext(t)

	first := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		res, _ := conn.Receive(ctx, buf)
		first <- string(buf[:res.Count])
	}()
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.receives) == 1
	}, time.Second, time.Millisecond)

	second := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		res, _ := conn.Receive(ctx, buf)
		second <- string(buf[:res.Count])
	}()
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.receives) == 2
	}, time.Second, time.Millisecond)

	socket.deliver(Frame{Type: MessageText, Data: []byte("one"), EndOfMessage: true})
	socket.deliver(Frame{Type: MessageText, Data: []byte("two"), EndOfMessage: true})

	assert.Equal(t, "one", <-first)
	assert.Equal(t, "two", <-second)
}

// TestReceiveCancellation tests that a cancelled receive leaves later receives intact
func TestReceiveCancellation(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	conn := NewConn(socket, zerolog.Nop())
	defer conn.Abort()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := conn.Receive(ctx, make([]byte, 8))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	conn.mu.Lock()
	assert.Empty(t, conn.receives)
	conn.mu.Unlock()

	socket.deliver(Frame{Type: MessageText, Data: []byte("kept"), EndOfMessage: true})
	msg, err := conn.ReadMessage(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(msg.Data))
}

// TestReceiveCancelledWhileClosing tests a receive cancelled after the
// connection dequeued it but before the close result was delivered
func TestReceiveCancelledWhileClosing(t *testing.T) {
	t.Parallel()

	conn := &Conn{
		socket: newFakeSocket(),
		log:    zerolog.Nop(),
		state:  StateOpen,
		closed: async.NewFuture[struct{}](),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res ReceiveResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := conn.Receive(ctx, make([]byte, 8))
		done <- outcome{res, err}
	}()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.receives) == 1
	}, time.Second, time.Millisecond)

	// First half of finish: the receive leaves the queue but is not yet resolved.
	conn.mu.Lock()
	parked := conn.receives
	conn.receives = nil
	conn.state = StateClosed
	conn.closeCode = 1006
	res := conn.closedResult()
	conn.mu.Unlock()

	cancel()
	select {
	case got := <-done:
		t.Fatalf("Receive returned before the close result was delivered: %+v, %v", got.res, got.err)
	case <-time.After(50 * time.Millisecond):
	}

	parked[0].result.Resolve(res)
	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Receive")
	}
	require.NoError(t, got.err)
	assert.Equal(t, MessageClose, got.res.Type)
	assert.Equal(t, 1006, got.res.CloseCode)
}

// TestPeerClose tests the close handshake started by the peer
func TestPeerClose(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	conn := NewConn(socket, zerolog.Nop())
	ctx := testContext(t)

	socket.deliver(Frame{Type: MessageText, Data: []byte("last"), EndOfMessage: true})
	socket.deliver(Frame{Type: MessageClose, EndOfMessage: true, CloseCode: 4000, CloseReason: "bye"})

	select {
	case <-conn.Done():
	case <-ctx.Done():
		t.Fatal("connection did not close")
	}
	assert.Equal(t, StateClosed, conn.State())
	assert.Equal(t, []int{4000}, socket.closeCodes())

	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "last", string(msg.Data))

	msg, err = conn.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageClose, msg.Type)
	assert.Equal(t, 4000, msg.CloseCode)
	assert.Equal(t, "bye", msg.CloseReason)

	assert.ErrorIs(t, conn.Send(ctx, []byte("x"), MessageText, true), knet.ErrConnectionClosed)
}

// TestLocalClose tests the close handshake started locally
func TestLocalClose(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	socket.echoClose = true
	conn := NewConn(socket, zerolog.Nop())
	ctx := testContext(t)

	require.NoError(t, conn.Close(ctx, knet.CloseInvalidPayload, "bad payload"))
	assert.Equal(t, StateClosed, conn.State())
	assert.Equal(t, []int{knet.CloseInvalidPayload}, socket.closeCodes())

	code, _ := conn.CloseStatus()
	assert.Equal(t, knet.CloseInvalidPayload, code)

	require.NoError(t, conn.Close(ctx, knet.CloseNormal, ""))
	assert.Len(t, socket.closeCodes(), 1)
}

// TestCloseTimeout tests that an unanswered close aborts the transport when ctx ends
func TestCloseTimeout(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	conn := NewConn(socket, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := conn.Close(ctx, knet.CloseNormal, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateClosed, conn.State())
}

// TestReadFailureIsImplicitClose tests that a transport error closes the
// connection with 1006 and answers parked receives with a close result
func TestReadFailureIsImplicitClose(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	conn := NewConn(socket, zerolog.Nop())
	ctx := testContext(t)

	results := make(chan ReceiveResult, 1)
	go func() {
		res, err := conn.Receive(ctx, make([]byte, 8))
		assert.NoError(t, err)
		results <- res
	}()
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.receives) == 1
	}, time.Second, time.Millisecond)

	socket.Close()

	res := <-results
	assert.Equal(t, MessageClose, res.Type)
	assert.Equal(t, knet.CloseAbnormal, res.CloseCode)
	assert.Equal(t, StateClosed, conn.State())
}

// TestSend tests outbound message rules
func TestSend(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	conn := NewConn(socket, zerolog.Nop())
	defer conn.Abort()
	ctx := testContext(t)

	assert.ErrorIs(t, conn.Send(ctx, []byte("part"), MessageText, false), knet.ErrFragmentedSend)
	require.NoError(t, conn.Send(ctx, []byte("whole"), MessageText, true))

	written := socket.writtenFrames()
	require.Len(t, written, 1)
	assert.Equal(t, "whole", string(written[0].Data))
	assert.True(t, written[0].EndOfMessage)
}

// TestSendWaitsForFlush tests that Send returns only once the buffer drains
func TestSendWaitsForFlush(t *testing.T) {
	t.Parallel()

	socket := newFakeSocket()
	socket.buffered.Store(5)
	conn := NewConn(socket, zerolog.Nop())
	defer conn.Abort()

	done := make(chan error, 1)
	go func() { done <- conn.Send(testContext(t), []byte("data"), MessageText, true) }()

	select {
	case <-done:
		t.Fatal("Send returned before the buffer drained")
	case <-time.After(30 * time.Millisecond):
	}

	socket.buffered.Store(0)
	require.NoError(t, <-done)
}
