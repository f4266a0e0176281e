// Package wsproto implements elink's Protocol port (C1) for Moonraker /
// Klipper printers, which speak JSON-RPC over a single long-lived
// WebSocket connection. Built on gorilla/websocket — the teacher's own
// transport library, here used client-side via Dialer instead of the
// teacher's server-side Upgrader.
package wsproto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"elink/connparams"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
)

// Client is a WebSocket-backed Protocol for one Moonraker instance.
type Client struct {
	printerID string
	host      string
	port      int

	mu     sync.Mutex
	conn   *websocket.Conn
	closed chan struct{}

	writeMu sync.Mutex

	messageHandler func([]byte)
	statusHandler  func(bool)
}

// New constructs a Client for printerID at host:port. Moonraker exposes
// its JSON-RPC API at /websocket by default.
func New(printerID, host string, port int) *Client {
	return &Client{printerID: printerID, host: host, port: port}
}

func (c *Client) SetMessageHandler(handler func(frame []byte)) {
	c.mu.Lock()
	c.messageHandler = handler
	c.mu.Unlock()
}

func (c *Client) SetStatusChangedHandler(handler func(connected bool)) {
	c.mu.Lock()
	c.statusHandler = handler
	c.mu.Unlock()
}

// Connect dials the Moonraker WebSocket endpoint and starts the read
// pump. params.Timeout, if set, overrides the dial deadline.
func (c *Client) Connect(ctx context.Context, params connparams.Params) error {
	timeout := dialTimeout
	if params.Timeout > 0 {
		timeout = params.Timeout
	}

	dialer := &websocket.Dialer{HandshakeTimeout: timeout}
	url := fmt.Sprintf("ws://%s:%d/websocket", c.host, c.port)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("elink/wsproto: dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = make(chan struct{})
	c.mu.Unlock()

	go c.readPump()
	c.notifyStatus(true)
	return nil
}

// Disconnect closes the WebSocket connection and waits for the read pump
// to notice.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	select {
	case <-closed:
	case <-ctx.Done():
	}
	return err
}

// Send writes frame as a single WebSocket text message.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("elink/wsproto: not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// readPump reads frames until the connection errors or is closed, then
// reports the connection as lost. It is the sole reader of conn, matching
// gorilla/websocket's one-reader-at-a-time requirement.
func (c *Client) readPump() {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	defer func() {
		close(closed)
		c.notifyStatus(false)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		c.mu.Lock()
		handler := c.messageHandler
		c.mu.Unlock()
		if handler != nil {
			handler(payload)
		}
	}
}

func (c *Client) notifyStatus(connected bool) {
	c.mu.Lock()
	handler := c.statusHandler
	c.mu.Unlock()
	if handler != nil {
		handler(connected)
	}
}
