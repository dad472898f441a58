package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server.url must be a ws:// or wss:// endpoint, got %q", c.Server.URL)
	}
	if c.Server.FallbackURL != "" &&
		!strings.HasPrefix(c.Server.FallbackURL, "http://") &&
		!strings.HasPrefix(c.Server.FallbackURL, "https://") {
		return fmt.Errorf("server.fallback_url must be an http:// or https:// endpoint, got %q", c.Server.FallbackURL)
	}

	if c.Auth.Token == "" {
		return errors.New("auth.token is required")
	}

	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}
	if c.Connection.ReconnectBaseDelay > c.Connection.ReconnectMaxDelay {
		return fmt.Errorf("connection.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Connection.ReconnectBaseDelay, c.Connection.ReconnectMaxDelay)
	}

	if c.Queue.Capacity < 1 {
		return errors.New("queue.capacity must be >= 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return errors.New("queue.max_attempts must be >= 1")
	}

	if c.Streams.MaxActive < 1 {
		return errors.New("streams.max_active must be >= 1")
	}

	if c.History.LatencySamples < 1 {
		return errors.New("history.latency_samples must be >= 1")
	}
	if c.History.EventCapacity < 1 {
		return errors.New("history.event_capacity must be >= 1")
	}

	return nil
}
