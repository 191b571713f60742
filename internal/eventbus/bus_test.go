package eventbus

import "testing"

func TestLocalBusPublishSubscribe(t *testing.T) {
	b := NewLocalBus()
	var got []Event
	unsub := b.Subscribe(func(e Event) { got = append(got, e) })

	b.Publish(Event{Kind: EventPermissionRequest, SessionID: "s1"})
	if len(got) != 1 || got[0].SessionID != "s1" {
		t.Fatalf("expected one event for s1, got %+v", got)
	}

	unsub()
	b.Publish(Event{Kind: EventSelectionPrompt, SessionID: "s2"})
	if len(got) != 1 {
		t.Fatalf("expected no events after unsubscribe, got %+v", got)
	}
}

func TestLocalBusMultipleListeners(t *testing.T) {
	b := NewLocalBus()
	var a, c int
	b.Subscribe(func(Event) { a++ })
	b.Subscribe(func(Event) { c++ })

	b.Publish(Event{Kind: EventPermissionRequest})
	if a != 1 || c != 1 {
		t.Fatalf("expected both listeners to fire once, got a=%d c=%d", a, c)
	}
}
