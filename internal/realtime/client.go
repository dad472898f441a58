package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
	"github.com/haroon-aygtc/synapse-realtime/internal/metrics"
	"github.com/haroon-aygtc/synapse-realtime/internal/queue"
	"github.com/haroon-aygtc/synapse-realtime/internal/router"
	"github.com/haroon-aygtc/synapse-realtime/internal/stream"
	"github.com/haroon-aygtc/synapse-realtime/internal/subscription"
	"github.com/haroon-aygtc/synapse-realtime/internal/transport"
)

// Option customizes a client at construction time.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialer overrides how transports are established. Tests use this to
// substitute fake channels.
func WithDialer(dial transport.DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// Client owns one logical connection to the event bus and orchestrates the
// subscription registry, outbound queue, stream reassembler, and health
// tracker around it.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dial   transport.DialFunc

	registry    *subscription.Registry
	outbound    *queue.Outbound
	tracker     *metrics.Tracker
	router      *router.Router
	reassembler *stream.Reassembler
	breaker     *gobreaker.CircuitBreaker

	mu         sync.Mutex
	state      State
	tr         transport.Transport
	creds      transport.Credentials
	rooms      map[string]struct{}
	listeners  map[int64]StatusListener
	listenerID int64
	reconnects int64

	// Per-session lifecycle: created on Connect, cancelled on Disconnect.
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs a disconnected client. The caller owns its lifecycle.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		dial:      transport.Dial,
		state:     StateDisconnected,
		rooms:     make(map[string]struct{}),
		listeners: make(map[int64]StatusListener),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.registry = subscription.NewRegistry(c.logger.With("component", "registry"))
	c.outbound = queue.New(cfg.QueueCapacity, cfg.QueueMaxAttempts, c.logger.With("component", "queue"))
	c.tracker = metrics.NewTracker(cfg.LatencyCapacity, cfg.HistoryCapacity)
	c.router = router.New(c.registry, c.tracker, c.logger.With("component", "router"))
	c.reassembler = stream.New(cfg.StreamMaxActive, cfg.StreamTTL, c.router.Route, c.logger.With("component", "stream"))
	c.router.Bind(c.reassembler)

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "transport-send",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("send breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return c
}

// Connect establishes the connection. It is a no-op when already connected
// and rejects attempts while another connect or a reconnect is in flight.
// An empty token fails before any transport I/O. A Disconnect issued while
// the dial is in flight wins: the late dial result is discarded and Connect
// returns ErrConnectAborted.
func (c *Client) Connect(ctx context.Context, token, organizationID string) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	if token == "" {
		c.mu.Unlock()
		return ErrMissingToken
	}
	c.creds = transport.Credentials{Token: token, OrganizationID: organizationID}
	creds := c.creds
	c.state = StateConnecting
	c.mu.Unlock()
	c.notify(StateConnecting)

	tr, err := c.dial(ctx, c.cfg.Transport, creds, c.logger.With("component", "transport"))
	if err != nil {
		c.mu.Lock()
		if c.state != StateConnecting {
			// Disconnected while dialing; keep the terminal state.
			c.mu.Unlock()
			return ErrConnectAborted
		}
		c.state = StateError
		c.mu.Unlock()
		c.notify(StateError)
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnected while dialing; discard the fresh transport.
		c.mu.Unlock()
		tr.Close()
		return ErrConnectAborted
	}
	c.tr = tr
	c.state = StateConnected
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	runCtx := c.runCtx
	c.wg.Add(3)
	c.mu.Unlock()

	go c.readLoop(runCtx, tr)
	go c.heartbeatLoop(runCtx)
	go c.flushLoop(runCtx)

	c.notify(StateConnected)
	c.logger.Info("connected", "url", c.cfg.Transport.URL)

	c.afterConnect()
	return nil
}

// Disconnect tears the connection down, cancels every timer, and clears the
// queue, history, stream buffers, and latency samples. Subscriptions and
// room membership survive for a later Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	tr := c.tr
	c.tr = nil
	if c.runCancel != nil {
		c.runCancel()
	}
	c.mu.Unlock()

	if tr != nil {
		// Best-effort server-side cleanup before teardown.
		for _, sub := range c.registry.Active() {
			c.sendFrame(tr, event.Frame{
				Type:           event.FrameUnsubscribe,
				SubscriptionID: sub.ID,
				Channel:        sub.Channel,
			})
		}
		tr.Close()
	}

	c.wg.Wait()

	c.outbound.Clear()
	c.tracker.Reset()
	c.reassembler.Reset()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	c.notify(StateDisconnected)

	c.logger.Info("disconnected")
}

// Publish sends an event when connected, otherwise queues it. The assigned
// event id is returned either way; transient send failures are absorbed into
// the queue.
func (c *Client) Publish(e *event.Event) (string, error) {
	if e == nil {
		return "", ErrNilEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Metadata.Timestamp.IsZero() {
		e.Metadata.Timestamp = time.Now()
	}

	if c.Status() != StateConnected {
		c.outbound.Enqueue(e)
		return e.ID, nil
	}

	if err := c.sendEvent(e); err != nil {
		c.logger.Warn("publish failed, queueing event",
			"event_id", e.ID,
			"channel", e.Channel,
			"error", err,
		)
		c.outbound.Enqueue(e)
	}
	return e.ID, nil
}

// Subscribe registers a handler for a channel with an optional exact-match
// filter. The returned closure unsubscribes; calling it twice is a no-op.
func (c *Client) Subscribe(channel event.Channel, filter map[string]any, handler subscription.Handler) func() {
	sub, _ := c.registry.Subscribe(channel, filter, handler)

	if tr := c.transport(); tr != nil {
		c.sendFrame(tr, event.Frame{
			Type:           event.FrameSubscribe,
			SubscriptionID: sub.ID,
			Channel:        channel,
			Filter:         filter,
		})
	}

	return func() {
		if !c.registry.Unsubscribe(sub.ID) {
			return
		}
		if tr := c.transport(); tr != nil {
			c.sendFrame(tr, event.Frame{
				Type:           event.FrameUnsubscribe,
				SubscriptionID: sub.ID,
				Channel:        channel,
			})
		}
	}
}

// JoinRoom records room membership and announces it when connected.
// Membership is replayed after every (re)connect.
func (c *Client) JoinRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()

	if tr := c.transport(); tr != nil {
		c.sendFrame(tr, event.Frame{Type: event.FrameJoinRoom, RoomID: roomID})
	}
}

// LeaveRoom drops room membership and announces it when connected.
func (c *Client) LeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()

	if tr := c.transport(); tr != nil {
		c.sendFrame(tr, event.Frame{Type: event.FrameLeaveRoom, RoomID: roomID})
	}
}

// Status returns the current connection state.
func (c *Client) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStatusChange registers a state transition listener and returns its
// remover.
func (c *Client) OnStatusChange(listener StatusListener) func() {
	c.mu.Lock()
	c.listenerID++
	id := c.listenerID
	c.listeners[id] = listener
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Metrics returns a health snapshot.
func (c *Client) Metrics() Snapshot {
	qs := c.outbound.Stats()
	rs := c.router.Stats()

	c.mu.Lock()
	state := c.state
	reconnects := c.reconnects
	c.mu.Unlock()

	return Snapshot{
		State:            state,
		AverageLatency:   c.tracker.AverageLatency(),
		EventsReceived:   rs.Received,
		EventsDispatched: rs.Dispatched,
		QueueDepth:       qs.Depth,
		QueueEvicted:     qs.Evicted,
		QueueDropped:     qs.Dropped,
		ActiveStreams:    c.reassembler.Len(),
		Subscriptions:    c.registry.Len(),
		Reconnects:       reconnects,
	}
}

// EventHistory returns buffered events, newest-last. An empty channel
// matches all channels; limit 0 returns everything buffered.
func (c *Client) EventHistory(channel event.Channel, limit int) []*event.Event {
	return c.tracker.History(metrics.HistoryQuery{Channel: channel, Limit: limit})
}

// transport returns the live transport, or nil while disconnected.
func (c *Client) transport() transport.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil
	}
	return c.tr
}

// notify invokes status listeners without holding the client lock.
func (c *Client) notify(s State) {
	c.mu.Lock()
	snapshot := make([]StatusListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		snapshot = append(snapshot, l)
	}
	c.mu.Unlock()

	for _, l := range snapshot {
		l(s)
	}
}

// afterConnect re-issues state the server lost: active subscriptions, room
// membership, and the outbound queue.
func (c *Client) afterConnect() {
	tr := c.transport()
	if tr == nil {
		return
	}

	for _, sub := range c.registry.Active() {
		c.sendFrame(tr, event.Frame{
			Type:           event.FrameSubscribe,
			SubscriptionID: sub.ID,
			Channel:        sub.Channel,
			Filter:         sub.Filter,
		})
	}

	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()
	for _, id := range rooms {
		c.sendFrame(tr, event.Frame{Type: event.FrameJoinRoom, RoomID: id})
	}

	c.flushQueue()
}

// sendFrame encodes and sends one control frame, logging failures. Control
// frames are best-effort; the server reconciles on reconnect.
func (c *Client) sendFrame(tr transport.Transport, f event.Frame) {
	data, err := f.Encode()
	if err != nil {
		c.logger.Error("failed to encode frame", "type", f.Type, "error", err)
		return
	}
	if err := tr.Send(data); err != nil {
		c.logger.Warn("failed to send frame", "type", f.Type, "error", err)
	}
}

// sendEvent delivers one event frame through the circuit breaker. A tripped
// breaker fails fast so publishes divert to the queue instead of hammering a
// dead transport.
func (c *Client) sendEvent(e *event.Event) error {
	_, err := c.breaker.Execute(func() (any, error) {
		tr := c.transport()
		if tr == nil {
			return nil, transport.ErrNotConnected
		}
		data, err := event.Frame{Type: event.FrameEvent, Event: e}.Encode()
		if err != nil {
			return nil, err
		}
		return nil, tr.Send(data)
	})
	return err
}

// flushQueue retries queued events over the live transport.
func (c *Client) flushQueue() {
	sent, dropped := c.outbound.Flush(time.Now(), c.sendEvent)
	if sent > 0 || dropped > 0 {
		c.logger.Debug("queue flushed", "sent", sent, "dropped", dropped)
	}
}

// readLoop drains one transport until it dies or the session ends.
func (c *Client) readLoop(runCtx context.Context, tr transport.Transport) {
	defer c.wg.Done()

	for {
		select {
		case <-runCtx.Done():
			return

		case err := <-tr.Errors():
			c.logger.Warn("transport lost", "error", err)
			c.transportLost(runCtx, tr)
			return

		case msg, ok := <-tr.Messages():
			if !ok {
				c.transportLost(runCtx, tr)
				return
			}
			c.handleFrame(msg)
		}
	}
}

// handleFrame decodes and processes one inbound wire frame.
func (c *Client) handleFrame(msg transport.Message) {
	f, err := event.DecodeFrame(msg.Data)
	if err != nil {
		c.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch f.Type {
	case event.FrameEvent:
		if f.Event == nil {
			c.logger.Warn("event frame without event body")
			return
		}
		c.router.Route(f.Event)

	case event.FramePong:
		if f.Timestamp > 0 {
			rtt := msg.ReceivedAt.Sub(time.Unix(0, f.Timestamp))
			if rtt > 0 {
				c.tracker.RecordLatency(rtt)
			}
		}

	case event.FramePing:
		if tr := c.transport(); tr != nil {
			c.sendFrame(tr, event.Frame{Type: event.FramePong, Timestamp: f.Timestamp})
		}

	case event.FrameRateLimited:
		c.logger.Warn("server rate limit notice",
			"code", f.Code,
			"message", f.Message,
			"retry_after_ms", f.RetryAfterMS,
		)

	case event.FrameError:
		c.logger.Error("server error notice", "code", f.Code, "message", f.Message)

	default:
		c.logger.Debug("ignoring frame", "type", f.Type)
	}
}

// heartbeatLoop sends ping frames; matching pongs feed the latency ring.
func (c *Client) heartbeatLoop(runCtx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			tr := c.transport()
			if tr == nil {
				continue
			}
			c.sendFrame(tr, event.Frame{
				Type:      event.FramePing,
				Timestamp: time.Now().UnixNano(),
			})
		}
	}
}

// flushLoop retries the outbound queue while connected.
func (c *Client) flushLoop(runCtx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.QueueFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			if c.Status() == StateConnected && c.outbound.Len() > 0 {
				c.flushQueue()
			}
		}
	}
}

// transportLost handles a server-initiated drop: the state moves to
// reconnecting and one reconnect loop starts. Explicit disconnects never
// reach here because the session context is cancelled first.
func (c *Client) transportLost(runCtx context.Context, tr transport.Transport) {
	c.mu.Lock()
	if c.state != StateConnected || c.tr != tr {
		// Stale notification from a transport already replaced or torn down.
		c.mu.Unlock()
		return
	}
	c.tr = nil
	c.state = StateReconnecting
	c.wg.Add(1)
	c.mu.Unlock()

	tr.Close()
	c.notify(StateReconnecting)

	go c.reconnectLoop(runCtx)
}

// reconnectLoop re-dials with exponential backoff until it succeeds, the
// attempt budget runs out, or the session ends.
func (c *Client) reconnectLoop(runCtx context.Context) {
	defer c.wg.Done()

	bo := newReconnectBackoff(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay)

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		wait := bo.NextBackOff()

		select {
		case <-runCtx.Done():
			return
		case <-time.After(wait):
		}

		c.logger.Info("attempting reconnect",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxReconnectAttempts,
		)

		c.mu.Lock()
		creds := c.creds
		c.mu.Unlock()

		tr, err := c.dial(runCtx, c.cfg.Transport, creds, c.logger.With("component", "transport"))
		if err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		if c.state != StateReconnecting {
			// Disconnected while dialing; discard the fresh transport.
			c.mu.Unlock()
			tr.Close()
			return
		}
		c.tr = tr
		c.state = StateConnected
		c.reconnects++
		c.wg.Add(1)
		c.mu.Unlock()

		go c.readLoop(runCtx, tr)

		c.notify(StateConnected)
		c.logger.Info("reconnected", "attempt", attempt)

		c.afterConnect()
		return
	}

	c.logger.Error("giving up on reconnect",
		"attempts", c.cfg.MaxReconnectAttempts,
		"error", ErrReconnectExhausted,
	)

	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.mu.Unlock()
	c.notify(StateError)
}
