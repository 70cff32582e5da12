package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
)

// wsSubprotocol is negotiated during the websocket handshake.
const wsSubprotocol = "agentweave"

// WSChannel is the websocket duplex binding. A dropped connection surfaces as
// TRANSPORT_CLOSED; there is no automatic reconnect.
type WSChannel struct {
	url    string
	logger logging.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
}

// DialWS connects to a websocket tool server.
func DialWS(ctx context.Context, url string, logger logging.Logger) (*WSChannel, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
	})
	if err != nil {
		return nil, core.Errorf(core.ErrTransportClosed, "websocket dial %s", url).WithCause(err)
	}
	return &WSChannel{url: url, logger: logger, conn: conn}, nil
}

// NewWSChannel wraps an accepted server-side connection.
func NewWSChannel(conn *websocket.Conn, logger logging.Logger) *WSChannel {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WSChannel{logger: logger, conn: conn}
}

// Send writes one envelope as a text frame. Writes are serialized.
func (c *WSChannel) Send(ctx context.Context, msg *Message) error {
	conn, err := c.active()
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.markClosed()
		return core.Errorf(core.ErrTransportClosed, "websocket write").WithCause(err)
	}
	return nil
}

// Receive reads the next text frame.
func (c *WSChannel) Receive(ctx context.Context) (*Message, error) {
	conn, err := c.active()
	if err != nil {
		return nil, err
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.markClosed()
		return nil, core.Errorf(core.ErrTransportClosed, "websocket read").WithCause(err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode websocket frame: %w", err)
	}
	return &msg, nil
}

// Close performs a normal closure handshake.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}

func (c *WSChannel) active() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return nil, errClosed("websocket")
	}
	return c.conn, nil
}

func (c *WSChannel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
