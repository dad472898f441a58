package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrMissingToken    = errors.New("missing auth token")
)

// Credentials authenticate the channel at connect time.
type Credentials struct {
	Token          string // bearer token, required
	OrganizationID string // sent as X-Organization-ID
}

// Message wraps raw frame data with a receive timestamp.
type Message struct {
	Data       []byte    // raw frame bytes
	ReceivedAt time.Time // local timestamp when the transport received it
}

// Transport is one persistent, bidirectional, authenticated message channel.
type Transport interface {
	// Connect establishes the channel. Credentials must carry a token.
	Connect(ctx context.Context, creds Credentials) error

	// Close tears the channel down. Safe to call more than once.
	Close() error

	// Send writes one raw frame.
	Send(data []byte) error

	// Messages returns the channel of inbound frames.
	Messages() <-chan Message

	// Errors returns the channel of fatal transport errors. A value here
	// means the channel is dead and must be re-dialed.
	Errors() <-chan error

	// IsConnected reports the current channel state.
	IsConnected() bool
}

// Config configures a transport.
type Config struct {
	URL              string        // push endpoint (ws:// or wss://)
	FallbackURL      string        // long-poll endpoint (http:// or https://), empty disables fallback
	HandshakeTimeout time.Duration // dial deadline
	WriteTimeout     time.Duration // write deadline per send
	PingTimeout      time.Duration // max silence before the channel is considered stale
	PollInterval     time.Duration // long-poll request pacing
	BufferSize       int           // inbound message channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingTimeout:      60 * time.Second,
		PollInterval:     2 * time.Second,
		BufferSize:       1000,
	}
}

// DialFunc establishes a connected transport. The realtime client takes one
// of these so tests can substitute a fake channel.
type DialFunc func(ctx context.Context, cfg Config, creds Credentials, logger *slog.Logger) (Transport, error)

// Dial connects over WebSocket, falling back to long-poll when a fallback URL
// is configured and the upgrade fails.
func Dial(ctx context.Context, cfg Config, creds Credentials, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ws := NewWebSocket(cfg, logger)
	wsErr := ws.Connect(ctx, creds)
	if wsErr == nil {
		return ws, nil
	}

	if cfg.FallbackURL == "" {
		return nil, fmt.Errorf("dial websocket: %w", wsErr)
	}

	logger.Warn("websocket dial failed, falling back to long-poll",
		"url", cfg.URL,
		"error", wsErr,
	)

	lp := NewLongPoll(cfg, logger)
	if err := lp.Connect(ctx, creds); err != nil {
		return nil, fmt.Errorf("dial long-poll after websocket failure (%v): %w", wsErr, err)
	}
	return lp, nil
}
