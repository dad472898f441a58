package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel is a named logical partition of the event stream.
type Channel string

// Well-known channels. ChannelCustom is the catch-all for application-defined
// partitions.
const (
	ChannelAgentEvents    Channel = "agent-events"
	ChannelWorkflowEvents Channel = "workflow-events"
	ChannelToolEvents     Channel = "tool-events"
	ChannelSystemEvents   Channel = "system-events"
	ChannelNotifications  Channel = "notifications"
	ChannelCustom         Channel = "custom"
)

// Priority orders events by urgency. It does not affect delivery order within
// a channel; it is carried for consumers.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TypeStreamCompleted is the distinguished type of the combined event
// synthesized when all chunks of a stream have arrived.
const TypeStreamCompleted = "stream_completed"

// Metadata carries the envelope fields common to every event.
type Metadata struct {
	Timestamp      time.Time `json:"timestamp"`
	UserID         string    `json:"userId,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty"`
	SessionID      string    `json:"sessionId,omitempty"`
	Source         string    `json:"source,omitempty"`
	SchemaVersion  string    `json:"schemaVersion,omitempty"`
	CorrelationID  string    `json:"correlationId,omitempty"`
	RoomID         string    `json:"roomId,omitempty"`
}

// metadataWire mirrors Metadata with the timestamp left raw so it can be
// accepted as either an RFC 3339 string or epoch milliseconds.
type metadataWire struct {
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	OrganizationID string          `json:"organizationId,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	Source         string          `json:"source,omitempty"`
	SchemaVersion  string          `json:"schemaVersion,omitempty"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	RoomID         string          `json:"roomId,omitempty"`
}

// UnmarshalJSON normalizes the wire timestamp to a time.Time. Servers emit
// RFC 3339 strings; older producers emit epoch milliseconds.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var wire metadataWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*m = Metadata{
		UserID:         wire.UserID,
		OrganizationID: wire.OrganizationID,
		SessionID:      wire.SessionID,
		Source:         wire.Source,
		SchemaVersion:  wire.SchemaVersion,
		CorrelationID:  wire.CorrelationID,
		RoomID:         wire.RoomID,
	}

	if len(wire.Timestamp) == 0 || string(wire.Timestamp) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(wire.Timestamp, &s); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse metadata timestamp %q: %w", s, err)
		}
		m.Timestamp = ts
		return nil
	}

	var millis int64
	if err := json.Unmarshal(wire.Timestamp, &millis); err != nil {
		return fmt.Errorf("parse metadata timestamp: %w", err)
	}
	m.Timestamp = time.UnixMilli(millis)
	return nil
}

// MarshalJSON emits the timestamp as RFC 3339.
func (m Metadata) MarshalJSON() ([]byte, error) {
	wire := metadataWire{
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		SessionID:      m.SessionID,
		Source:         m.Source,
		SchemaVersion:  m.SchemaVersion,
		CorrelationID:  m.CorrelationID,
		RoomID:         m.RoomID,
	}
	if !m.Timestamp.IsZero() {
		ts, err := json.Marshal(m.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, err
		}
		wire.Timestamp = ts
	}
	return json.Marshal(wire)
}

// StreamInfo marks an event as one chunk of a long-running response.
type StreamInfo struct {
	StreamID    string `json:"streamId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	End         bool   `json:"isStreamEnd,omitempty"`
}

// Event is the envelope around every message, inbound and outbound.
type Event struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Channel  Channel  `json:"channel"`
	Payload  any      `json:"payload,omitempty"`
	Metadata Metadata `json:"metadata"`
	Priority Priority `json:"priority,omitempty"`

	// TTLMillis is an optional lifetime hint in milliseconds. Zero means no
	// expiry.
	TTLMillis int64 `json:"ttl,omitempty"`

	RetryCount int `json:"retryCount,omitempty"`
	MaxRetries int `json:"maxRetries,omitempty"`

	Stream *StreamInfo `json:"stream,omitempty"`
}

// New builds an event with a fresh ID, the current timestamp, and normal
// priority.
func New(eventType string, channel Channel, payload any) *Event {
	return &Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Channel:  channel,
		Payload:  payload,
		Priority: PriorityNormal,
		Metadata: Metadata{Timestamp: time.Now()},
	}
}

// IsChunk reports whether the event carries stream chunk fields.
func (e *Event) IsChunk() bool {
	return e.Stream != nil && e.Stream.StreamID != ""
}

// Expired reports whether the event's TTL has elapsed relative to now.
// Events without a TTL or without a timestamp never expire.
func (e *Event) Expired(now time.Time) bool {
	if e.TTLMillis <= 0 || e.Metadata.Timestamp.IsZero() {
		return false
	}
	return now.After(e.Metadata.Timestamp.Add(time.Duration(e.TTLMillis) * time.Millisecond))
}
