package event

import (
	"encoding/json"
	"fmt"
)

// FrameType tags a wire frame.
type FrameType string

const (
	FrameEvent       FrameType = "event"
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameJoinRoom    FrameType = "join_room"
	FrameLeaveRoom   FrameType = "leave_room"
	FramePing        FrameType = "ping"
	FramePong        FrameType = "pong"
	FrameRateLimited FrameType = "rate_limited"
	FrameError       FrameType = "error"
)

// Frame is the single wire envelope exchanged with the event bus. Fields are
// populated according to Type; unused fields are omitted.
type Frame struct {
	Type FrameType `json:"type"`

	// event
	Event *Event `json:"event,omitempty"`

	// subscribe / unsubscribe
	SubscriptionID string         `json:"subscriptionId,omitempty"`
	Channel        Channel        `json:"channel,omitempty"`
	Filter         map[string]any `json:"filter,omitempty"`

	// join_room / leave_room
	RoomID string `json:"roomId,omitempty"`

	// ping / pong: nanoseconds since epoch, echoed back by the server
	Timestamp int64 `json:"ts,omitempty"`

	// rate_limited / error
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
	RetryAfterMS int64  `json:"retryAfterMs,omitempty"`
}

// Encode serializes the frame for the transport.
func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeFrame parses one wire frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}
