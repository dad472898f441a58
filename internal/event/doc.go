// Package event defines the envelope shared by every message moving through
// the realtime client.
//
// Conventions:
//   - Timestamps: time.Time in memory, RFC 3339 or epoch milliseconds on the wire
//   - IDs: uuid strings, assigned client-side when absent
//   - Payloads: opaque decoded JSON; the client never interprets them beyond
//     filter field-path lookups
package event
