package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes.
const (
	CloseNormal           = websocket.CloseNormalClosure   // 1000, deliberate client close
	CloseAbnormal         = websocket.CloseAbnormalClosure // 1006, no close frame
	CloseHeartbeatTimeout = 4000
)

const writeWait = 10 * time.Second

// Conn is one open push channel.
type Conn interface {
	// ReadMessage blocks for the next text frame. When the channel ends it
	// returns a *CloseError.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a Conn to rawURL.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// CloseError reports how a channel ended.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: code=%d text=%s", e.Code, e.Text)
}

func closeDetails(err error) (int, string) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return CloseAbnormal, err.Error()
}

// handshakeURL places the credentials on the connection request.
func handshakeURL(base, token, userID, role string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ws: parse url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("userId", userID)
	q.Set("role", role)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	dialer *websocket.Dialer
}

func NewGorillaDialer(handshakeTimeout time.Duration) *GorillaDialer {
	return &GorillaDialer{dialer: &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeTimeout,
	}}
}

func (d *GorillaDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	c, resp, err := d.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws: dial failed with HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("ws: dial: %w", err)
	}
	return &gorillaConn{c: c}, nil
}

type gorillaConn struct {
	c *websocket.Conn
}

func (g *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.c.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Text: ce.Text}
		}
		return nil, &CloseError{Code: CloseAbnormal, Text: err.Error()}
	}
	return data, nil
}

func (g *gorillaConn) WriteMessage(data []byte) error {
	if err := g.c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return g.c.WriteMessage(websocket.TextMessage, data)
}

func (g *gorillaConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = g.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return g.c.Close()
}
