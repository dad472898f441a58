package stream

import (
	"reflect"
	"testing"
	"time"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
)

func chunk(streamID string, index, total int, end bool, payload any) *event.Event {
	e := event.New("AGENT_RESPONSE_CHUNK", event.ChannelAgentEvents, payload)
	e.Stream = &event.StreamInfo{
		StreamID:    streamID,
		ChunkIndex:  index,
		TotalChunks: total,
		End:         end,
	}
	return e
}

func collector() (*[]*event.Event, EmitFunc) {
	var emitted []*event.Event
	return &emitted, func(e *event.Event) { emitted = append(emitted, e) }
}

func TestReassembler_InOrderCompletion(t *testing.T) {
	emitted, emit := collector()
	r := New(16, time.Minute, emit, nil)

	r.Add(chunk("s-1", 0, 3, false, "a"))
	r.Add(chunk("s-1", 1, 3, false, "b"))
	if len(*emitted) != 0 {
		t.Fatal("combined event emitted before completion")
	}

	r.Add(chunk("s-1", 2, 3, false, "c"))

	if len(*emitted) != 1 {
		t.Fatalf("emitted = %d, want 1", len(*emitted))
	}

	combined := (*emitted)[0]
	if combined.Type != event.TypeStreamCompleted {
		t.Errorf("Type = %s, want %s", combined.Type, event.TypeStreamCompleted)
	}
	if combined.Channel != event.ChannelAgentEvents {
		t.Errorf("Channel = %s, want agent-events", combined.Channel)
	}
	if combined.Metadata.CorrelationID != "s-1" {
		t.Errorf("CorrelationID = %s, want s-1", combined.Metadata.CorrelationID)
	}
	if want := []any{"a", "b", "c"}; !reflect.DeepEqual(combined.Payload, want) {
		t.Errorf("Payload = %v, want %v", combined.Payload, want)
	}
	if combined.Stream != nil {
		t.Error("combined event must not carry stream fields")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0 after completion", r.Len())
	}
}

func TestReassembler_OutOfOrderArrival(t *testing.T) {
	emitted, emit := collector()
	r := New(16, time.Minute, emit, nil)

	// Arrival order 2, 0, then the end chunk 1 with the End flag.
	r.Add(chunk("s-2", 2, 0, false, "c"))
	r.Add(chunk("s-2", 0, 0, false, "a"))
	r.Add(chunk("s-2", 1, 0, true, "b"))

	if len(*emitted) != 1 {
		t.Fatalf("emitted = %d, want 1", len(*emitted))
	}
	if want := []any{"a", "b", "c"}; !reflect.DeepEqual((*emitted)[0].Payload, want) {
		t.Errorf("Payload = %v, want chunkIndex order %v", (*emitted)[0].Payload, want)
	}
}

func TestReassembler_EndFlagWithoutTotalChunks(t *testing.T) {
	emitted, emit := collector()
	r := New(16, time.Minute, emit, nil)

	r.Add(chunk("s-3", 0, 0, false, "x"))
	r.Add(chunk("s-3", 1, 0, true, "y"))

	if len(*emitted) != 1 {
		t.Fatalf("emitted = %d, want 1", len(*emitted))
	}
	if want := []any{"x", "y"}; !reflect.DeepEqual((*emitted)[0].Payload, want) {
		t.Errorf("Payload = %v, want %v", (*emitted)[0].Payload, want)
	}
}

func TestReassembler_IndependentStreams(t *testing.T) {
	emitted, emit := collector()
	r := New(16, time.Minute, emit, nil)

	r.Add(chunk("s-a", 0, 2, false, "a0"))
	r.Add(chunk("s-b", 0, 2, false, "b0"))

	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2 in-flight streams", r.Len())
	}

	r.Add(chunk("s-b", 1, 2, false, "b1"))

	if len(*emitted) != 1 {
		t.Fatalf("emitted = %d, want 1", len(*emitted))
	}
	if (*emitted)[0].Metadata.CorrelationID != "s-b" {
		t.Errorf("completed stream = %s, want s-b", (*emitted)[0].Metadata.CorrelationID)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 remaining stream", r.Len())
	}
}

func TestReassembler_IgnoresNonChunkEvents(t *testing.T) {
	emitted, emit := collector()
	r := New(16, time.Minute, emit, nil)

	r.Add(event.New("AGENT_CREATED", event.ChannelAgentEvents, nil))

	if r.Len() != 0 || len(*emitted) != 0 {
		t.Error("non-chunk event must not create a buffer or emit")
	}
}

func TestReassembler_SingleChunkStream(t *testing.T) {
	emitted, emit := collector()
	r := New(16, time.Minute, emit, nil)

	r.Add(chunk("s-solo", 0, 1, false, "only"))

	if len(*emitted) != 1 {
		t.Fatalf("emitted = %d, want 1", len(*emitted))
	}
	if want := []any{"only"}; !reflect.DeepEqual((*emitted)[0].Payload, want) {
		t.Errorf("Payload = %v, want %v", (*emitted)[0].Payload, want)
	}
}

func TestReassembler_CapacityEvictsStaleStreams(t *testing.T) {
	_, emit := collector()
	r := New(2, time.Minute, emit, nil)

	r.Add(chunk("s-1", 0, 5, false, "a"))
	r.Add(chunk("s-2", 0, 5, false, "b"))
	r.Add(chunk("s-3", 0, 5, false, "c")) // evicts s-1 (LRU)

	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	if r.Expired() != 1 {
		t.Errorf("Expired = %d, want 1", r.Expired())
	}
}

// Exercises the TTL reaper goroutine against concurrent Add/Expired/Reset
// callers; run with -race.
func TestReassembler_ConcurrentTTLExpiry(t *testing.T) {
	_, emit := collector()
	r := New(512, 10*time.Millisecond, emit, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			id := "s-" + string(rune('a'+i%26))
			r.Add(chunk(id, i%5, 0, false, i))
			r.Len()
			r.Expired()
			time.Sleep(time.Millisecond)
		}
	}()

	for {
		select {
		case <-done:
			if r.Expired() == 0 {
				t.Error("expected TTL reaper to expire incomplete buffers")
			}
			r.Reset()
			return
		default:
			r.Expired()
			r.Len()
			time.Sleep(time.Millisecond)
		}
	}
}

func TestReassembler_Reset(t *testing.T) {
	_, emit := collector()
	r := New(16, time.Minute, emit, nil)

	r.Add(chunk("s-1", 0, 5, false, "a"))
	r.Add(chunk("s-2", 0, 5, false, "b"))

	r.Reset()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0 after reset", r.Len())
	}
	if r.Expired() != 0 {
		t.Errorf("Expired = %d, want 0: reset is not an expiry", r.Expired())
	}
}
