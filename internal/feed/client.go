package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport dials real WebSocket feed connections.
type WSTransport struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewWSTransport creates the production transport.
func NewWSTransport(cfg ClientConfig, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultClientConfig().PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultClientConfig().PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultClientConfig().WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}
	return &WSTransport{cfg: cfg, logger: logger}
}

// Dial opens a connection and starts its read and heartbeat loops.
func (t *WSTransport) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		cfg:      t.cfg,
		logger:   t.logger,
		ws:       ws,
		messages: make(chan []byte, t.cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	c.lastPong = time.Now()

	ws.SetPingHandler(func(data string) error {
		c.touch()
		return ws.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	t.logger.Debug("websocket connected", "url", url)
	return c, nil
}

// wsConn wraps a gorilla websocket connection.
type wsConn struct {
	cfg    ClientConfig
	logger *slog.Logger
	ws     *websocket.Conn

	messages chan []byte
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu       sync.Mutex
	lastPong time.Time
	closed   bool
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

// Send writes a JSON command to the connection.
func (c *wsConn) Send(v any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteJSON(v)
}

// Messages returns the inbound frame channel.
func (c *wsConn) Messages() <-chan []byte {
	return c.messages
}

// Errors returns the error channel.
func (c *wsConn) Errors() <-chan error {
	return c.errors
}

// Close tears down the connection.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// readLoop pumps inbound frames into the messages channel.
func (c *wsConn) readLoop() {
	defer close(c.messages)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			// Errors after Close are expected teardown noise.
			select {
			case <-c.done:
			default:
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// heartbeatLoop sends keepalive pings and flags stale connections.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			stale := time.Since(c.lastPong) > c.cfg.PingTimeout
			c.mu.Unlock()

			if stale {
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
