package socket

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

// Client is a single physical WebSocket connection. It owns the read pump
// and serializes writes; everything above it (control frames, heartbeat,
// reconnection) lives in the channel layer.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// messages carries every inbound text frame; it is closed when the
	// read pump exits, which doubles as the connection-dead signal.
	messages chan []byte

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closed    bool
	closeInfo CloseInfo
}

// New creates an unconnected client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 256
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan []byte, cfg.BufferSize),
	}
}

// Connect dials the configured URL. Authentication is carried as query
// parameters on the URL itself, so no extra headers are needed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close performs a normal closure. Safe to call more than once.
func (c *Client) Close() error {
	return c.CloseWithStatus(websocket.CloseNormalClosure, "client disconnect")
}

// CloseWithStatus closes the connection with a specific close code. The
// heartbeat monitor uses this to distinguish liveness-timeout closes from
// deliberate teardown.
func (c *Client) CloseWithStatus(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	if c.closeInfo.Code == 0 {
		c.closeInfo = CloseInfo{Code: code, Reason: reason, Local: true}
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// Send writes one text frame.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound frame channel. The channel is closed when
// the connection dies; CloseInfo is valid from that point on.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// CloseInfo reports why the connection ended. Only meaningful after the
// Messages channel has been closed.
func (c *Client) CloseInfo() CloseInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeInfo
}

// readLoop reads frames until the connection dies, then records the close
// reason and closes the messages channel.
func (c *Client) readLoop() {
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.recordClose(err)
			return
		}

		select {
		case c.messages <- data:
		default:
			c.logger.Warn("message buffer full, dropping message")
		}
	}
}

// recordClose captures the close code and reason from a read error, unless
// a local close already recorded one.
func (c *Client) recordClose(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.closeInfo.Code != 0 {
		return
	}

	if ce, ok := err.(*websocket.CloseError); ok {
		c.closeInfo = CloseInfo{Code: ce.Code, Reason: ce.Text}
		return
	}
	c.closeInfo = CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error(), Err: err}
}
