// Package metrics tracks connection health and recent event history.
//
// Two bounded ring buffers back the tracker:
//   - latency samples (heartbeat round-trips), rolling arithmetic mean
//   - event history, queryable by channel, time range, and result limit
//
// Both evict the oldest entry on overflow.
package metrics
