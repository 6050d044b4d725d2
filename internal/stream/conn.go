package stream

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FailureKind classifies why a send to a subscriber failed. Every kind
// triggers the same recovery (eviction); the tag exists for diagnostics.
type FailureKind int

const (
	FailureClosed FailureKind = iota
	FailureTimeout
	FailureProtocol
)

func (k FailureKind) String() string {
	switch k {
	case FailureClosed:
		return "closed"
	case FailureTimeout:
		return "timeout"
	default:
		return "protocol"
	}
}

// SendError reports a delivery failure together with its classification.
type SendError struct {
	Kind FailureKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Conn is the send-capable handle for one live subscriber. The registry
// owns a Conn from registration until removal.
type Conn interface {
	Send(payload []byte) error
	Close() error
	RemoteAddr() string
}

// wsConn adapts a gorilla websocket connection to Conn. Writes are
// serialized through a mutex: gorilla permits at most one concurrent
// writer per connection.
type wsConn struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewConn wraps an upgraded websocket connection. writeTimeout bounds
// each send so a hung subscriber cannot stall a broadcast cycle.
func NewConn(conn *websocket.Conn, writeTimeout time.Duration) Conn {
	return &wsConn{
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &SendError{Kind: classify(err), Err: err}
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.remote
}

func classify(err error) FailureKind {
	var netErr net.Error
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure),
		errors.Is(err, websocket.ErrCloseSent),
		errors.Is(err, net.ErrClosed):
		return FailureClosed
	case errors.As(err, &netErr) && netErr.Timeout():
		return FailureTimeout
	default:
		return FailureProtocol
	}
}
