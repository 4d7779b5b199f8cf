package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport dials the telemetry endpoint over gorilla/websocket.
type wsTransport struct {
	url              string
	handshakeTimeout time.Duration
}

func newWSTransport(url string, handshakeTimeout time.Duration) *wsTransport {
	return &wsTransport{url: url, handshakeTimeout: handshakeTimeout}
}

func (t *wsTransport) dial(ctx context.Context) (wireConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, &ConnectionError{URL: t.url, Reason: err.Error()}
	}
	return &wsConn{conn: conn}, nil
}

// wsConn wraps a websocket connection with a write mutex and idempotent close.
type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex // serialises all conn writes (pings, control)

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) readFrame() ([]byte, bool, error) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, msgType == websocket.BinaryMessage, nil
}

func (c *wsConn) writeText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
