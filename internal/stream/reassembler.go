// Package stream reconstructs chunked long-running responses. Chunks arrive
// in any order; completion produces one combined event routed back through
// the event router.
package stream

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
)

// Defaults for the stream buffer map. The TTL bounds memory held by streams
// whose completion chunk never arrives.
const (
	DefaultMaxStreams = 256
	DefaultTTL        = 5 * time.Minute
)

// EmitFunc receives the combined event on stream completion. The connection
// manager wires it to the event router's ingress.
type EmitFunc func(*event.Event)

// buffer accumulates the chunks of one stream. The LRU's expiry reaper reads
// buffers from its own goroutine, so the mutable fields carry their own
// synchronization.
type buffer struct {
	createdAt time.Time
	completed atomic.Bool

	mu     sync.Mutex
	chunks []*event.Event
}

func (b *buffer) append(e *event.Event) {
	b.mu.Lock()
	b.chunks = append(b.chunks, e)
	b.mu.Unlock()
}

func (b *buffer) snapshot() []*event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunks
}

// Reassembler buffers chunks per stream id. Buffers are dropped on
// completion, on capacity pressure (LRU), and on TTL expiry.
type Reassembler struct {
	logger *slog.Logger
	emit   EmitFunc

	mu      sync.Mutex
	buffers *expirable.LRU[string, *buffer]
	expired atomic.Int64
}

// New creates a reassembler. Non-positive maxStreams or ttl fall back to
// defaults.
func New(maxStreams int, ttl time.Duration, emit EmitFunc, logger *slog.Logger) *Reassembler {
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reassembler{
		logger: logger,
		emit:   emit,
	}
	r.buffers = expirable.NewLRU[string, *buffer](maxStreams, r.onEvict, ttl)
	return r
}

// onEvict logs buffers dropped without completing (TTL expiry or LRU
// pressure). Completed buffers pass through silently. Runs on the LRU's
// reaper goroutine as well as inline from Add, so it touches only the
// buffer's synchronized fields.
func (r *Reassembler) onEvict(streamID string, b *buffer) {
	if b.completed.Load() {
		return
	}
	r.expired.Add(1)
	r.logger.Warn("dropping incomplete stream buffer",
		"stream_id", streamID,
		"chunks", len(b.snapshot()),
		"age", time.Since(b.createdAt),
	)
}

// Add buffers one chunk. When the chunk completes its stream, the buffered
// chunks are sorted by index, their payloads concatenated, and one combined
// event is emitted; the buffer is deleted immediately.
func (r *Reassembler) Add(e *event.Event) {
	if !e.IsChunk() {
		return
	}
	info := e.Stream

	r.mu.Lock()
	b, ok := r.buffers.Get(info.StreamID)
	if !ok {
		b = &buffer{createdAt: time.Now()}
	}
	b.append(e)
	r.buffers.Add(info.StreamID, b)

	complete := info.End || (info.TotalChunks > 0 && info.ChunkIndex == info.TotalChunks-1)
	if !complete {
		r.mu.Unlock()
		return
	}

	b.completed.Store(true)
	r.buffers.Remove(info.StreamID)
	chunks := b.snapshot()
	r.mu.Unlock()

	combined := r.combine(info.StreamID, chunks)

	r.logger.Debug("stream completed",
		"stream_id", info.StreamID,
		"chunks", len(chunks),
	)

	// Emit outside the lock: the router re-enters dispatch from here.
	r.emit(combined)
}

// combine orders chunks by index and concatenates their payloads.
func (r *Reassembler) combine(streamID string, chunks []*event.Event) *event.Event {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Stream.ChunkIndex < chunks[j].Stream.ChunkIndex
	})

	payloads := make([]any, len(chunks))
	for i, c := range chunks {
		payloads[i] = c.Payload
	}

	last := chunks[len(chunks)-1]
	return &event.Event{
		ID:      uuid.NewString(),
		Type:    event.TypeStreamCompleted,
		Channel: last.Channel,
		Payload: payloads,
		Metadata: event.Metadata{
			Timestamp:      time.Now(),
			UserID:         last.Metadata.UserID,
			OrganizationID: last.Metadata.OrganizationID,
			SessionID:      last.Metadata.SessionID,
			Source:         last.Metadata.Source,
			CorrelationID:  streamID,
			RoomID:         last.Metadata.RoomID,
		},
		Priority: last.Priority,
	}
}

// Len returns the number of in-flight stream buffers.
func (r *Reassembler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffers.Len()
}

// Expired returns the number of buffers dropped without completing.
func (r *Reassembler) Expired() int64 {
	return r.expired.Load()
}

// Reset drops every in-flight buffer.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mark as completed so Purge does not log each one as dropped.
	for _, id := range r.buffers.Keys() {
		if b, ok := r.buffers.Peek(id); ok {
			b.completed.Store(true)
		}
	}
	r.buffers.Purge()
}
