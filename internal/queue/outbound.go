// Package queue buffers outbound events that could not be sent while
// disconnected and retries them with per-message exponential backoff.
package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
)

// Defaults for the outbound queue.
const (
	DefaultCapacity    = 500
	DefaultMaxAttempts = 5
)

// Message wraps one queued event with its retry bookkeeping.
type Message struct {
	Event       *event.Event
	Attempts    int
	MaxAttempts int
	NextRetryAt time.Time
	CreatedAt   time.Time
}

// Stats reports queue counters.
type Stats struct {
	Depth   int
	Evicted int64 // dropped to make room (oldest-first)
	Dropped int64 // dropped after exhausting the retry budget
	Sent    int64
}

// SendFunc attempts delivery of one event.
type SendFunc func(*event.Event) error

// Outbound is a bounded FIFO of undeliverable events. Exceeding capacity
// evicts the oldest message, never the newest.
type Outbound struct {
	logger *slog.Logger

	mu          sync.Mutex
	msgs        []*Message
	capacity    int
	maxAttempts int

	evicted int64
	dropped int64
	sent    int64
}

// New creates an empty queue. Non-positive arguments fall back to defaults.
func New(capacity, maxAttempts int, logger *slog.Logger) *Outbound {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Outbound{
		logger:      logger,
		capacity:    capacity,
		maxAttempts: maxAttempts,
	}
}

// Enqueue appends an event, immediately eligible for the next flush.
func (q *Outbound) Enqueue(e *event.Event) {
	now := time.Now()
	msg := &Message{
		Event:       e,
		MaxAttempts: q.maxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
	}

	q.mu.Lock()
	q.append(msg)
	depth := len(q.msgs)
	q.mu.Unlock()

	q.logger.Debug("event queued",
		"event_id", e.ID,
		"channel", e.Channel,
		"depth", depth,
	)
}

// append adds a message, evicting the oldest when full. Lock must be held.
func (q *Outbound) append(msg *Message) {
	if len(q.msgs) >= q.capacity {
		oldest := q.msgs[0]
		q.msgs = q.msgs[1:]
		q.evicted++
		q.logger.Warn("queue full, evicting oldest event",
			"event_id", oldest.Event.ID,
			"age", time.Since(oldest.CreatedAt),
		)
	}
	q.msgs = append(q.msgs, msg)
}

// Flush attempts delivery of every message due at now. Events whose TTL has
// elapsed are dropped without a send attempt. Successful sends are removed;
// failures are rescheduled at now + 2^attempts seconds until the retry budget
// is exhausted, then dropped. Send runs without the queue lock held, so
// reentrant Enqueue calls are safe.
func (q *Outbound) Flush(now time.Time, send SendFunc) (sent, dropped int) {
	q.mu.Lock()
	var due, waiting []*Message
	for _, m := range q.msgs {
		if m.NextRetryAt.After(now) {
			waiting = append(waiting, m)
		} else {
			due = append(due, m)
		}
	}
	q.msgs = waiting
	q.mu.Unlock()

	var failed []*Message
	for _, m := range due {
		if m.Event.Expired(now) {
			dropped++
			q.logger.Warn("dropping expired event",
				"event_id", m.Event.ID,
				"ttl_ms", m.Event.TTLMillis,
				"age", now.Sub(m.Event.Metadata.Timestamp),
			)
			continue
		}
		if err := send(m.Event); err != nil {
			m.Attempts++
			if m.Attempts >= m.MaxAttempts {
				dropped++
				q.logger.Warn("dropping event after retry budget exhausted",
					"event_id", m.Event.ID,
					"attempts", m.Attempts,
					"error", err,
				)
				continue
			}

			m.NextRetryAt = now.Add(time.Duration(1<<m.Attempts) * time.Second)
			failed = append(failed, m)
			q.logger.Debug("send failed, rescheduling",
				"event_id", m.Event.ID,
				"attempts", m.Attempts,
				"next_retry_at", m.NextRetryAt,
				"error", err,
			)
			continue
		}
		sent++
	}

	q.mu.Lock()
	for _, m := range failed {
		q.append(m)
	}
	q.sent += int64(sent)
	q.dropped += int64(dropped)
	q.mu.Unlock()

	return sent, dropped
}

// Len returns the current queue depth.
func (q *Outbound) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Snapshot returns the queued messages oldest first.
func (q *Outbound) Snapshot() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, len(q.msgs))
	copy(out, q.msgs)
	return out
}

// Clear drops every queued message.
func (q *Outbound) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = nil
}

// Stats returns queue counters.
func (q *Outbound) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Depth:   len(q.msgs),
		Evicted: q.evicted,
		Dropped: q.dropped,
		Sent:    q.sent,
	}
}
