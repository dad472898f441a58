// Package transport implements the persistent message channel to the event
// bus.
//
// Two implementations share one interface:
//   - WebSocket (gorilla/websocket), the primary push transport
//   - HTTP long-poll, the fallback when the WebSocket upgrade fails
//
// Dial attempts the upgrade path: WebSocket first, long-poll second.
package transport
