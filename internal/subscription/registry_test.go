package subscription

import (
	"testing"

	"github.com/haroon-aygtc/synapse-realtime/internal/event"
)

func agentEvent(eventType string) *event.Event {
	return event.New(eventType, event.ChannelAgentEvents, map[string]any{"agentId": "a-1"})
}

func TestRegistry_DispatchMatchesChannelAndFilter(t *testing.T) {
	r := NewRegistry(nil)

	var got []string
	r.Subscribe(event.ChannelAgentEvents, map[string]any{"type": "AGENT_CREATED"}, func(e *event.Event) {
		got = append(got, e.Type)
	})

	if n := r.Dispatch(agentEvent("AGENT_CREATED")); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if n := r.Dispatch(agentEvent("AGENT_UPDATED")); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
	if n := r.Dispatch(event.New("AGENT_CREATED", event.ChannelSystemEvents, nil)); n != 0 {
		t.Errorf("delivered = %d, want 0 for other channel", n)
	}

	if len(got) != 1 || got[0] != "AGENT_CREATED" {
		t.Errorf("handler saw %v, want [AGENT_CREATED]", got)
	}
}

func TestRegistry_DispatchOrderFollowsRegistration(t *testing.T) {
	r := NewRegistry(nil)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
			order = append(order, i)
		})
	}

	r.Dispatch(agentEvent("AGENT_CREATED"))

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending registration order", order)
		}
	}
}

func TestRegistry_UnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(nil)

	count := 0
	_, unsubscribe := r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
		count++
	})

	r.Dispatch(agentEvent("AGENT_CREATED"))
	unsubscribe()
	r.Dispatch(agentEvent("AGENT_CREATED"))

	if count != 1 {
		t.Errorf("handler invocations = %d, want 1", count)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_UnsubscribeIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	sub, unsubscribe := r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {})

	unsubscribe()
	unsubscribe() // second call must be a no-op

	if sub.Active() {
		t.Error("expected subscription inactive")
	}
	if r.Unsubscribe(sub.ID) {
		t.Error("Unsubscribe on removed id should return false")
	}
}

func TestRegistry_HandlerPanicDoesNotAbortDispatch(t *testing.T) {
	r := NewRegistry(nil)

	r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
		panic("handler bug")
	})

	laterCalled := false
	r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
		laterCalled = true
	})

	n := r.Dispatch(agentEvent("AGENT_CREATED"))
	if n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}
	if !laterCalled {
		t.Error("expected later subscriber to run despite earlier panic")
	}
}

func TestRegistry_ReentrantUnsubscribeDuringDispatch(t *testing.T) {
	r := NewRegistry(nil)

	var unsubscribeSecond func()
	secondCount := 0

	r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
		unsubscribeSecond()
	})
	_, unsubscribeSecond = r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
		secondCount++
	})

	// First handler unsubscribes the second mid-dispatch; the second must
	// not fire for this event or any later one.
	r.Dispatch(agentEvent("AGENT_CREATED"))
	r.Dispatch(agentEvent("AGENT_CREATED"))

	if secondCount != 0 {
		t.Errorf("second handler invocations = %d, want 0", secondCount)
	}
}

func TestRegistry_ReentrantSubscribeDuringDispatch(t *testing.T) {
	r := NewRegistry(nil)

	nestedCount := 0
	r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
		if r.Len() == 1 {
			r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {
				nestedCount++
			})
		}
	})

	// The nested subscription is added during dispatch and must only see
	// events from the next dispatch cycle on.
	r.Dispatch(agentEvent("AGENT_CREATED"))
	if nestedCount != 0 {
		t.Errorf("nested handler ran during registering dispatch: %d", nestedCount)
	}

	r.Dispatch(agentEvent("AGENT_CREATED"))
	if nestedCount != 1 {
		t.Errorf("nested handler invocations = %d, want 1", nestedCount)
	}
}

func TestRegistry_ActiveSnapshot(t *testing.T) {
	r := NewRegistry(nil)

	_, unsub1 := r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {})
	sub2, _ := r.Subscribe(event.ChannelSystemEvents, nil, func(*event.Event) {})

	unsub1()

	active := r.Active()
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	if active[0].ID != sub2.ID {
		t.Errorf("active[0] = %s, want %s", active[0].ID, sub2.ID)
	}
}

func TestRegistry_CountersUpdateOnDelivery(t *testing.T) {
	r := NewRegistry(nil)

	sub, _ := r.Subscribe(event.ChannelAgentEvents, nil, func(*event.Event) {})

	if !sub.LastEventAt().IsZero() {
		t.Error("expected zero LastEventAt before delivery")
	}

	r.Dispatch(agentEvent("AGENT_CREATED"))
	r.Dispatch(agentEvent("AGENT_UPDATED"))

	if sub.EventCount() != 2 {
		t.Errorf("EventCount = %d, want 2", sub.EventCount())
	}
	if sub.LastEventAt().IsZero() {
		t.Error("expected LastEventAt to be set")
	}
}
