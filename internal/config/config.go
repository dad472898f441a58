package config

import (
	"time"

	"github.com/haroon-aygtc/synapse-realtime/internal/realtime"
	"github.com/haroon-aygtc/synapse-realtime/internal/transport"
)

// ClientConfig is the root configuration for a realtime client.
type ClientConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Connection ConnectionConfig `yaml:"connection"`
	Queue      QueueConfig      `yaml:"queue"`
	Streams    StreamsConfig    `yaml:"streams"`
	History    HistoryConfig    `yaml:"history"`
}

// ServerConfig holds the event bus endpoints.
type ServerConfig struct {
	URL         string `yaml:"url"`          // websocket endpoint
	FallbackURL string `yaml:"fallback_url"` // HTTP long-poll endpoint
}

// AuthConfig holds the credentials presented during the handshake.
type AuthConfig struct {
	Token          string `yaml:"token"`
	OrganizationID string `yaml:"organization_id"`
}

// ConnectionConfig holds connection lifecycle settings.
type ConnectionConfig struct {
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	BufferSize           int           `yaml:"buffer_size"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// QueueConfig holds outbound queue settings.
type QueueConfig struct {
	Capacity      int           `yaml:"capacity"`
	MaxAttempts   int           `yaml:"max_attempts"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// StreamsConfig holds chunked stream reassembly settings.
type StreamsConfig struct {
	MaxActive int           `yaml:"max_active"`
	TTL       time.Duration `yaml:"ttl"`
}

// HistoryConfig holds the bounded metric buffer sizes.
type HistoryConfig struct {
	LatencySamples int `yaml:"latency_samples"`
	EventCapacity  int `yaml:"event_capacity"`
}

// Realtime maps the file configuration onto a client configuration.
func (c *ClientConfig) Realtime() realtime.Config {
	rc := realtime.DefaultConfig()

	rc.Transport = transport.Config{
		URL:              c.Server.URL,
		FallbackURL:      c.Server.FallbackURL,
		HandshakeTimeout: c.Connection.HandshakeTimeout,
		WriteTimeout:     c.Connection.WriteTimeout,
		PingTimeout:      c.Connection.PingTimeout,
		PollInterval:     c.Connection.PollInterval,
		BufferSize:       c.Connection.BufferSize,
	}

	rc.HeartbeatInterval = c.Connection.HeartbeatInterval
	rc.ReconnectBaseDelay = c.Connection.ReconnectBaseDelay
	rc.ReconnectMaxDelay = c.Connection.ReconnectMaxDelay
	rc.MaxReconnectAttempts = c.Connection.MaxReconnectAttempts

	rc.QueueCapacity = c.Queue.Capacity
	rc.QueueMaxAttempts = c.Queue.MaxAttempts
	rc.QueueFlushInterval = c.Queue.FlushInterval

	rc.StreamMaxActive = c.Streams.MaxActive
	rc.StreamTTL = c.Streams.TTL

	rc.LatencyCapacity = c.History.LatencySamples
	rc.HistoryCapacity = c.History.EventCapacity

	return rc
}
