package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"futsal_notifier/internal/platform/timer"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type dialResult struct {
	conn Conn
	err  error
}

type dialAttempt struct {
	url    string
	result chan dialResult
}

func (a *dialAttempt) accept() *fakeConn {
	c := newFakeConn()
	a.result <- dialResult{conn: c}
	return c
}

func (a *dialAttempt) fail(err error) {
	a.result <- dialResult{err: err}
}

type fakeDialer struct {
	attempts chan *dialAttempt
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{attempts: make(chan *dialAttempt, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	a := &dialAttempt{url: rawURL, result: make(chan dialResult, 1)}
	d.attempts <- a
	select {
	case r := <-a.result:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) next(t *testing.T) *dialAttempt {
	t.Helper()
	select {
	case a := <-d.attempts:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dial attempt")
		return nil
	}
}

func (d *fakeDialer) assertNoDial(t *testing.T) {
	t.Helper()
	select {
	case a := <-d.attempts:
		t.Fatalf("unexpected dial attempt to %s", a.url)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeConn struct {
	inbound chan []byte
	closeCh chan *CloseError

	mu         sync.Mutex
	written    [][]byte
	closed     bool
	closedCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closeCh: make(chan *CloseError, 1),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.inbound:
		return b, nil
	case ce := <-c.closeCh:
		return nil, ce
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed conn")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closedCode = code
	c.mu.Unlock()
	select {
	case c.closeCh <- &CloseError{Code: code, Text: reason}:
	default:
	}
	return nil
}

// push simulates a server frame.
func (c *fakeConn) push(frame string) {
	c.inbound <- []byte(frame)
}

// serverClose simulates the server ending the channel.
func (c *fakeConn) serverClose(code int) {
	c.closeCh <- &CloseError{Code: code, Text: "server close"}
}

func (c *fakeConn) closeCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedCode, c.closed
}

func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, w := range c.written {
		var m inboundMessage
		if json.Unmarshal(w, &m) == nil {
			out = append(out, m.Type)
		}
	}
	return out
}

func (c *fakeConn) sentOfType(msgType string) []inboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []inboundMessage
	for _, w := range c.written {
		var m inboundMessage
		if json.Unmarshal(w, &m) == nil && m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type staticTokens struct {
	mu  sync.Mutex
	tok string
}

func (s *staticTokens) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok, nil
}

func (s *staticTokens) set(tok string) {
	s.mu.Lock()
	s.tok = tok
	s.mu.Unlock()
}

type testHarness struct {
	svc    *Service
	dialer *fakeDialer
	sched  *timer.Manual
	tokens *staticTokens
}

func newTestHarness(t *testing.T, mutate ...func(*Options)) *testHarness {
	t.Helper()
	opts := DefaultOptions("ws://futsal.test/ws")
	for _, m := range mutate {
		m(&opts)
	}
	h := &testHarness{
		dialer: newFakeDialer(),
		sched:  timer.NewManual(),
		tokens: &staticTokens{tok: "tok-stored"},
	}
	h.svc = NewService(opts, h.dialer, h.tokens, zap.NewNop(), WithScheduler(h.sched))
	t.Cleanup(h.svc.Disconnect)
	return h
}

// open connects and completes the handshake.
func (h *testHarness) open(t *testing.T) *fakeConn {
	t.Helper()
	h.svc.Connect("42", "staff_kasir", "tok-abc")
	conn := h.dialer.next(t).accept()
	require.Eventually(t, h.svc.IsConnected, time.Second, time.Millisecond)
	return conn
}

func collect[T any](topic *Topic[T]) (<-chan T, Subscription) {
	ch := make(chan T, 16)
	sub := topic.Subscribe(func(v T) { ch <- v })
	return ch, sub
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event")
		var zero T
		return zero
	}
}
