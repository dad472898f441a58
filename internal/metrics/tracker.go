package metrics

import (
	"sync"
	"time"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
)

// Default ring capacities.
const (
	DefaultLatencyCapacity = 100
	DefaultHistoryCapacity = 1000
)

// HistoryQuery narrows an event history lookup. Zero values mean "no
// constraint". Results are returned newest-last.
type HistoryQuery struct {
	Channel event.Channel
	Since   time.Time
	Until   time.Time
	Limit   int // most recent N; 0 returns everything matching
}

// Tracker owns the latency and history rings.
type Tracker struct {
	mu      sync.RWMutex
	latency *Ring[time.Duration]
	history *Ring[*event.Event]
}

// NewTracker creates a tracker. Non-positive capacities fall back to the
// defaults.
func NewTracker(latencyCapacity, historyCapacity int) *Tracker {
	if latencyCapacity <= 0 {
		latencyCapacity = DefaultLatencyCapacity
	}
	if historyCapacity <= 0 {
		historyCapacity = DefaultHistoryCapacity
	}

	return &Tracker{
		latency: NewRing[time.Duration](latencyCapacity),
		history: NewRing[*event.Event](historyCapacity),
	}
}

// RecordLatency appends one heartbeat round-trip sample.
func (t *Tracker) RecordLatency(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latency.Push(d)
}

// AverageLatency returns the rolling arithmetic mean of the buffered
// samples, or zero when none were recorded.
func (t *Tracker) AverageLatency() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.latency.Len()
	if n == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range t.latency.Snapshot() {
		sum += d
	}
	return sum / time.Duration(n)
}

// Append records an event in the history ring.
func (t *Tracker) Append(e *event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history.Push(e)
}

// History returns buffered events matching the query, oldest first
// (newest-last). Limit keeps only the most recent N matches.
func (t *Tracker) History(q HistoryQuery) []*event.Event {
	t.mu.RLock()
	snapshot := t.history.Snapshot()
	t.mu.RUnlock()

	matched := make([]*event.Event, 0, len(snapshot))
	for _, e := range snapshot {
		if q.Channel != "" && e.Channel != q.Channel {
			continue
		}
		ts := e.Metadata.Timestamp
		if !q.Since.IsZero() && ts.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && ts.After(q.Until) {
			continue
		}
		matched = append(matched, e)
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[len(matched)-q.Limit:]
	}
	return matched
}

// HistoryLen returns the number of buffered history events.
func (t *Tracker) HistoryLen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Len()
}

// Reset drops all latency samples and history events. Capacities are kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latency.Clear()
	t.history.Clear()
}
