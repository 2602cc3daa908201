package feed

import (
	"context"
	"errors"
	"time"
)

// Errors surfaced by the transport layer.
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
)

// Conn is a single live feed connection. The manager is the only
// consumer; it reads Messages and Errors and serializes writes through
// Send.
type Conn interface {
	// Send marshals a command to the feed as JSON.
	Send(v any) error

	// Messages returns raw inbound frames. Closed when the read loop
	// exits.
	Messages() <-chan []byte

	// Errors reports a transport fault. At most one error is delivered
	// per connection lifetime.
	Errors() <-chan error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Transport opens feed connections. The manager is transport-agnostic
// beyond this shape; production wiring uses the WebSocket transport,
// tests substitute a fake.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// ClientConfig configures the WebSocket transport.
type ClientConfig struct {
	PingInterval time.Duration // Keepalive ping cadence
	PingTimeout  time.Duration // Max silence before the conn is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound frame channel capacity
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 15 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}
