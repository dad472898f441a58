// Package realtime implements the connection manager, the public entry
// point of the client.
//
// The Client:
//   - Owns one logical connection and its lifecycle state machine
//     (disconnected, connecting, connected, reconnecting, error)
//   - Probes health with timestamped ping frames and records round-trips
//   - Reconnects with exponential backoff on server-initiated drops
//   - Replays subscriptions, room membership, and the outbound queue after
//     every successful (re)connect
package realtime
