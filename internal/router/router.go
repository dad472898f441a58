// Package router is the single ingress point for inbound events: it
// normalizes timestamps, forwards stream chunks to the reassembler, fans
// events out to the subscription registry, and appends them to history.
package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
	"github.com/haroon-aygtc/synapse-realtime/internal/metrics"
	"github.com/haroon-aygtc/synapse-realtime/internal/subscription"
)

// Reassembler is the slice of the stream reassembler the router needs.
type Reassembler interface {
	Add(*event.Event)
}

// Stats contains router counters.
type Stats struct {
	Received   int64
	Dispatched int64 // total deliveries across subscriptions
	Chunks     int64
}

// Router fans inbound events out to the registry, reassembler, and history.
type Router struct {
	registry *subscription.Registry
	tracker  *metrics.Tracker
	logger   *slog.Logger

	mu          sync.Mutex
	reassembler Reassembler
	received    int64
	dispatched  int64
	chunks      int64
}

// New creates a router. The reassembler is bound separately because it needs
// the router's Route as its emit target.
func New(registry *subscription.Registry, tracker *metrics.Tracker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry: registry,
		tracker:  tracker,
		logger:   logger,
	}
}

// Bind attaches the stream reassembler.
func (r *Router) Bind(res Reassembler) {
	r.mu.Lock()
	r.reassembler = res
	r.mu.Unlock()
}

// Route processes one inbound event: timestamp normalization, stream
// forwarding, subscription dispatch, history append. Combined stream events
// re-enter here via the reassembler's emit callback.
func (r *Router) Route(e *event.Event) {
	if e == nil {
		return
	}

	if e.Metadata.Timestamp.IsZero() {
		e.Metadata.Timestamp = time.Now()
	}

	r.mu.Lock()
	r.received++
	res := r.reassembler
	isChunk := e.IsChunk()
	if isChunk {
		r.chunks++
	}
	r.mu.Unlock()

	if isChunk && res != nil {
		// May synchronously re-enter Route with the combined event.
		res.Add(e)
	}

	delivered := r.registry.Dispatch(e)

	r.mu.Lock()
	r.dispatched += int64(delivered)
	r.mu.Unlock()

	r.tracker.Append(e)
}

// Stats returns current counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Received:   r.received,
		Dispatched: r.dispatched,
		Chunks:     r.chunks,
	}
}
