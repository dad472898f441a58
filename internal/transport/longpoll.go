package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// LongPoll is the fallback transport: inbound frames are fetched by repeated
// GET requests, outbound frames are POSTed one at a time. It trades latency
// for reachability behind proxies that break WebSocket upgrades.
type LongPoll struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	messages chan Message
	errors   chan error
	done     chan struct{}

	mu        sync.RWMutex
	connected bool
	closed    bool
	creds     Credentials
	cursor    string
}

// NewLongPoll creates an unconnected long-poll transport.
func NewLongPoll(cfg Config, logger *slog.Logger) *LongPoll {
	if logger == nil {
		logger = slog.Default()
	}

	return &LongPoll{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.HandshakeTimeout + 30*time.Second,
		},
		messages: make(chan Message, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// pollResponse is the body of one poll round.
type pollResponse struct {
	Cursor string            `json:"cursor"`
	Frames []json.RawMessage `json:"frames"`
}

// Connect verifies credentials with one poll round, then starts the loop.
func (t *LongPoll) Connect(ctx context.Context, creds Credentials) error {
	if creds.Token == "" {
		return ErrMissingToken
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrAlreadyClosed
	}
	t.creds = creds
	t.mu.Unlock()

	// First round doubles as the auth handshake.
	if err := t.pollOnce(ctx); err != nil {
		return fmt.Errorf("long-poll handshake: %w", err)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	go t.pollLoop()

	t.logger.Debug("long-poll connected", "url", t.cfg.FallbackURL)

	return nil
}

// Close stops the poll loop.
func (t *LongPoll) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	close(t.done)
	return nil
}

// Send POSTs one frame to the send endpoint.
func (t *LongPoll) Send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	creds := t.creds
	t.mu.RUnlock()

	req, err := http.NewRequest(http.MethodPost, t.cfg.FallbackURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	t.setHeaders(req, creds)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("long-poll send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Messages returns the inbound frame channel.
func (t *LongPoll) Messages() <-chan Message {
	return t.messages
}

// Errors returns the fatal error channel.
func (t *LongPoll) Errors() <-chan error {
	return t.errors
}

// IsConnected reports the current state.
func (t *LongPoll) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// pollLoop fetches frames until closed. Consecutive failures kill the
// transport so the caller can re-dial.
func (t *LongPoll) pollLoop() {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	const maxConsecutiveFailures = 3
	failures := 0

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.pollOnce(context.Background()); err != nil {
				failures++
				t.logger.Warn("poll round failed",
					"failures", failures,
					"error", err,
				)
				if failures >= maxConsecutiveFailures {
					select {
					case t.errors <- err:
					default:
					}
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// pollOnce performs one poll round and forwards any frames.
func (t *LongPoll) pollOnce(ctx context.Context) error {
	t.mu.RLock()
	creds := t.creds
	cursor := t.cursor
	t.mu.RUnlock()

	url := t.cfg.FallbackURL + "/poll"
	if cursor != "" {
		url += "?cursor=" + cursor
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	t.setHeaders(req, creds)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("long-poll auth rejected: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("long-poll: unexpected status %d", resp.StatusCode)
	}

	var body pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode poll response: %w", err)
	}

	t.mu.Lock()
	t.cursor = body.Cursor
	t.mu.Unlock()

	receivedAt := time.Now()
	for _, frame := range body.Frames {
		msg := Message{Data: frame, ReceivedAt: receivedAt}
		select {
		case t.messages <- msg:
		case <-t.done:
			return nil
		default:
			t.logger.Warn("message buffer full, dropping frame")
		}
	}

	return nil
}

func (t *LongPoll) setHeaders(req *http.Request, creds Credentials) {
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	if creds.OrganizationID != "" {
		req.Header.Set("X-Organization-ID", creds.OrganizationID)
	}
	req.Header.Set("Accept", "application/json")
}
