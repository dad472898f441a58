package metrics

// Ring is a fixed-capacity ring buffer that evicts the oldest entry when
// full. Not safe for concurrent use; the Tracker serializes access.
type Ring[T any] struct {
	buf      []T
	head     int // oldest entry
	count    int
	capacity int
	evicted  int64
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an entry, evicting the oldest when the ring is full.
// It returns true when an eviction happened.
func (r *Ring[T]) Push(v T) bool {
	tail := (r.head + r.count) % r.capacity
	r.buf[tail] = v

	if r.count == r.capacity {
		// Overwrote the oldest entry; advance the head past it.
		r.head = (r.head + 1) % r.capacity
		r.evicted++
		return true
	}

	r.count++
	return false
}

// Len returns the number of buffered entries.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Evicted returns the total number of entries dropped to overflow.
func (r *Ring[T]) Evicted() int64 {
	return r.evicted
}

// Snapshot returns the buffered entries oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%r.capacity]
	}
	return out
}

// Clear drops all entries, keeping the capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}
