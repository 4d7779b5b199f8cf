package telemetry

import (
	"testing"
)

func testMessage(msgType string) Message {
	return Message{
		Type:    msgType,
		Time:    1700000000000,
		Payload: Payload{Fields: map[string]any{"value": 1.0}},
	}
}

func TestRegistry_SubscribeAndDispatch(t *testing.T) {
	r := newSubscriptionRegistry()

	var got []Message
	r.subscribe("pack_voltage", func(msg Message) { got = append(got, msg) })

	r.dispatch(testMessage("pack_voltage"), discardErrors)
	r.dispatch(testMessage("pack_current"), discardErrors)

	if len(got) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(got))
	}
	if got[0].Type != "pack_voltage" {
		t.Errorf("delivered type = %q, want %q", got[0].Type, "pack_voltage")
	}
}

func TestRegistry_UnsubscribeStopsDelivery(t *testing.T) {
	r := newSubscriptionRegistry()

	count := 0
	unsub := r.subscribe("cell", func(Message) { count++ })
	unsub()

	r.dispatch(testMessage("cell"), discardErrors)
	if count != 0 {
		t.Errorf("delivered %d messages after unsubscribe, want 0", count)
	}
}

func TestRegistry_UnsubscribeIdempotent(t *testing.T) {
	r := newSubscriptionRegistry()

	count := 0
	first := r.subscribe("cell", func(Message) { count++ })
	second := r.subscribe("cell", func(Message) { count++ })

	first()
	first() // double unsubscribe must not touch the second subscription
	_ = second

	r.dispatch(testMessage("cell"), discardErrors)
	if count != 1 {
		t.Errorf("delivered %d messages, want 1", count)
	}
}

func TestRegistry_InvalidInputNoOp(t *testing.T) {
	r := newSubscriptionRegistry()

	unsub := r.subscribe("", func(Message) {})
	if unsub == nil {
		t.Fatal("subscribe with empty type should return a no-op unsubscribe")
	}
	unsub()

	unsub = r.subscribe("cell", nil)
	if unsub == nil {
		t.Fatal("subscribe with nil callback should return a no-op unsubscribe")
	}
	unsub()
}

func TestRegistry_ExactShadowsWildcard(t *testing.T) {
	r := newSubscriptionRegistry()

	var exact, wild int
	r.subscribe("pack_voltage", func(Message) { exact++ })
	r.subscribe(TypeAll, func(Message) { wild++ })

	r.dispatch(testMessage("pack_voltage"), discardErrors)
	if exact != 1 || wild != 0 {
		t.Errorf("exact = %d, wildcard = %d; want 1, 0", exact, wild)
	}

	r.dispatch(testMessage("motor_temp"), discardErrors)
	if wild != 1 {
		t.Errorf("wildcard = %d after unclaimed type, want 1", wild)
	}
}

func TestRegistry_PanicRemovesOnlyOffender(t *testing.T) {
	r := newSubscriptionRegistry()

	var errs []ClientError
	onError := func(e ClientError) { errs = append(errs, e) }

	good := 0
	r.subscribe("cell", func(Message) { panic("boom") })
	r.subscribe("cell", func(Message) { good++ })

	r.dispatch(testMessage("cell"), onError)
	if good != 1 {
		t.Fatalf("sibling delivered %d times, want 1", good)
	}
	if len(errs) != 1 || errs[0].Kind != ErrSubscriberPanic {
		t.Fatalf("errs = %v, want one ErrSubscriberPanic", errs)
	}

	// The offender is gone; the sibling keeps receiving.
	r.dispatch(testMessage("cell"), onError)
	if good != 2 {
		t.Errorf("sibling delivered %d times, want 2", good)
	}
	if len(errs) != 1 {
		t.Errorf("panic reported %d times, want 1", len(errs))
	}
}

func TestRegistry_EmptySetsPruned(t *testing.T) {
	r := newSubscriptionRegistry()

	unsub := r.subscribe("cell", func(Message) {})
	unsub()

	r.mu.RLock()
	_, ok := r.subs["cell"]
	r.mu.RUnlock()
	if ok {
		t.Error("empty subscriber set should be removed from the registry")
	}
}
