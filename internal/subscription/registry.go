// Package subscription implements the Subscription Registry: the set of
// active (channel, filter, handler) triples and the dispatch loop that
// matches inbound events against them.
package subscription

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
)

// Handler receives matching events. Handlers run synchronously on the
// dispatch path; panics are recovered and logged without aborting dispatch
// to later subscribers.
type Handler func(*event.Event)

// Subscription is one registered handler. Counters use atomics so dispatch
// never holds the registry lock while a handler runs.
type Subscription struct {
	ID        string
	Channel   event.Channel
	Filter    map[string]any
	CreatedAt time.Time

	handler     Handler
	active      atomic.Bool
	eventCount  atomic.Int64
	lastEventAt atomic.Int64 // unix nanos, 0 = never
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// EventCount returns the number of events delivered so far.
func (s *Subscription) EventCount() int64 {
	return s.eventCount.Load()
}

// LastEventAt returns the delivery time of the most recent event, or the
// zero time if none was delivered yet.
func (s *Subscription) LastEventAt() time.Time {
	ns := s.lastEventAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Registry stores subscriptions in registration order.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs []*Subscription
	byID map[string]*Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger: logger,
		byID:   make(map[string]*Subscription),
	}
}

// Subscribe registers a handler for a channel. The returned closure
// unsubscribes; calling it more than once is a no-op.
func (r *Registry) Subscribe(channel event.Channel, filter map[string]any, handler Handler) (*Subscription, func()) {
	sub := &Subscription{
		ID:        uuid.NewString(),
		Channel:   channel,
		Filter:    filter,
		CreatedAt: time.Now(),
		handler:   handler,
	}
	sub.active.Store(true)

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.byID[sub.ID] = sub
	r.mu.Unlock()

	r.logger.Debug("subscribed",
		"subscription_id", sub.ID,
		"channel", channel,
		"filter_keys", len(filter),
	)

	return sub, func() { r.Unsubscribe(sub.ID) }
}

// Unsubscribe deactivates and removes a subscription. It returns false when
// the id is unknown or already unsubscribed. Deactivation happens before
// removal so in-flight dispatch loops skip the subscription immediately.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	sub, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	sub.active.Store(false)
	delete(r.byID, id)
	for i, s := range r.subs {
		if s.ID == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Debug("unsubscribed", "subscription_id", id)
	return true
}

// Dispatch delivers an event to every active matching subscription in
// registration order and returns the delivery count. Handlers run without
// the registry lock held, so they may subscribe, unsubscribe, or publish.
func (r *Registry) Dispatch(e *event.Event) int {
	r.mu.RLock()
	snapshot := make([]*Subscription, len(r.subs))
	copy(snapshot, r.subs)
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		if sub.Channel != e.Channel {
			continue
		}
		if !event.MatchFilter(e, sub.Filter) {
			continue
		}

		r.invoke(sub, e)
		delivered++
	}

	return delivered
}

// invoke runs one handler, isolating panics from the dispatch loop.
func (r *Registry) invoke(sub *Subscription, e *event.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscription handler panicked",
				"subscription_id", sub.ID,
				"channel", sub.Channel,
				"event_id", e.ID,
				"panic", rec,
			)
		}
	}()

	sub.eventCount.Add(1)
	sub.lastEventAt.Store(time.Now().UnixNano())
	sub.handler(e)
}

// Active returns a snapshot of active subscriptions in registration order.
// The connection manager uses it to re-issue subscriptions after reconnect.
func (r *Registry) Active() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.active.Load() {
			out = append(out, sub)
		}
	}
	return out
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
