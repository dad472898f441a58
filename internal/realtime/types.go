package realtime

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/haroon-aygtc/synapse-realtime/internal/transport"
)

// Errors
var (
	ErrMissingToken       = errors.New("authentication required: empty token")
	ErrConnectInProgress  = errors.New("connect already in progress")
	ErrConnectAborted     = errors.New("connect aborted by disconnect")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNilEvent           = errors.New("nil event")
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// StatusListener observes connection state transitions.
type StatusListener func(State)

// Config configures a realtime client.
type Config struct {
	Transport transport.Config

	HeartbeatInterval    time.Duration // ping frame cadence
	ReconnectBaseDelay   time.Duration // delay before reconnect attempt 1
	ReconnectMaxDelay    time.Duration // clamp for the backoff schedule
	MaxReconnectAttempts int           // attempts before giving up

	QueueCapacity      int           // outbound queue bound
	QueueMaxAttempts   int           // per-message retry budget
	QueueFlushInterval time.Duration // retry pacing while connected

	StreamMaxActive int           // in-flight stream buffer bound
	StreamTTL       time.Duration // stale stream buffer expiry

	LatencyCapacity int // latency ring size
	HistoryCapacity int // event history ring size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Transport:            transport.DefaultConfig(),
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		QueueCapacity:        500,
		QueueMaxAttempts:     5,
		QueueFlushInterval:   5 * time.Second,
		StreamMaxActive:      256,
		StreamTTL:            5 * time.Minute,
		LatencyCapacity:      100,
		HistoryCapacity:      1000,
	}
}

// Snapshot reports client health counters.
type Snapshot struct {
	State            State
	AverageLatency   time.Duration
	EventsReceived   int64
	EventsDispatched int64
	QueueDepth       int
	QueueEvicted     int64
	QueueDropped     int64
	ActiveStreams    int
	Subscriptions    int
	Reconnects       int64
}

// newReconnectBackoff builds the reconnect delay schedule: attempt N waits
// base x 2^(N-1), clamped at the configured maximum. Randomization is
// disabled so the schedule is deterministic.
func newReconnectBackoff(base, max time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = max
	bo.Reset()
	return bo
}
