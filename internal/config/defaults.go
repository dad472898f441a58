package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultPollInterval         = 2 * time.Second
	DefaultBufferSize           = 1000
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultQueueCapacity        = 500
	DefaultQueueMaxAttempts     = 5
	DefaultQueueFlushInterval   = 5 * time.Second
	DefaultStreamMaxActive      = 256
	DefaultStreamTTL            = 5 * time.Minute
	DefaultLatencySamples       = 100
	DefaultEventCapacity        = 1000
)

func (c *ClientConfig) applyDefaults() {
	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.PollInterval == 0 {
		c.Connection.PollInterval = DefaultPollInterval
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	// Queue defaults
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = DefaultQueueCapacity
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = DefaultQueueMaxAttempts
	}
	if c.Queue.FlushInterval == 0 {
		c.Queue.FlushInterval = DefaultQueueFlushInterval
	}

	// Streams defaults
	if c.Streams.MaxActive == 0 {
		c.Streams.MaxActive = DefaultStreamMaxActive
	}
	if c.Streams.TTL == 0 {
		c.Streams.TTL = DefaultStreamTTL
	}

	// History defaults
	if c.History.LatencySamples == 0 {
		c.History.LatencySamples = DefaultLatencySamples
	}
	if c.History.EventCapacity == 0 {
		c.History.EventCapacity = DefaultEventCapacity
	}
}
