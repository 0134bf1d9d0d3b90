package events

import (
	"sync"
	"testing"
	"time"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(10, EventSessionInvalidated)

	hub.EmitSession(EventSessionInvalidated, "alice", "unauthorized")

	select {
	case e := <-ch:
		if e.Type != EventSessionInvalidated {
			t.Errorf("expected EventSessionInvalidated, got %s", e.Type)
		}
		data, ok := e.Data.(SessionData)
		if !ok {
			t.Fatal("expected SessionData")
		}
		if data.Reason != "unauthorized" {
			t.Errorf("expected reason unauthorized, got %s", data.Reason)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestHub_GlobalSubscription(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(10)

	hub.Publish(Event{Type: EventSessionLogin, Source: "test"})
	hub.Publish(Event{Type: EventCacheInvalidated, Source: "test"})
	hub.Publish(Event{Type: EventNavigate, Source: "test"})

	received := 0
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
			received++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if received != 3 {
		t.Errorf("expected 3 events, got %d", received)
	}
}

func TestHub_TypeFiltering(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(10, EventSessionLogin, EventSessionLogout)

	hub.Publish(Event{Type: EventCacheInvalidated, Source: "test"})
	hub.Publish(Event{Type: EventSessionLogin, Source: "test"})
	hub.Publish(Event{Type: EventNavigate, Source: "test"})
	hub.Publish(Event{Type: EventSessionLogout, Source: "test"})

	received := 0
	for {
		select {
		case <-ch:
			received++
		case <-time.After(50 * time.Millisecond):
			goto done
		}
	}
done:

	if received != 2 {
		t.Errorf("expected 2 session events, got %d", received)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventCacheInvalidated)
	hub.Unsubscribe(ch)

	hub.EmitCacheInvalidated("sites", 2)

	select {
	case e := <-ch:
		t.Errorf("unexpected event after unsubscribe: %s", e.Type)
	default:
	}
}

func TestHub_NonBlocking(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(1, EventCacheInvalidated)
	_ = ch

	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: EventCacheInvalidated, Source: "test"})
	}

	published, dropped := hub.Stats()
	if published != 10 {
		t.Errorf("expected 10 published, got %d", published)
	}
	if dropped < 9 {
		t.Errorf("expected at least 9 dropped, got %d", dropped)
	}
}

func TestHub_NilIsNoop(t *testing.T) {
	var hub *Hub
	hub.EmitResource(EventResourceCreated, "sites", "s1")
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1000, EventResourceUpdated)

	var wg sync.WaitGroup
	const numPublishers = 10
	const eventsPerPublisher = 100

	for i := 0; i < numPublishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				hub.EmitResource(EventResourceUpdated, "rules", "r1")
			}
		}()
	}

	wg.Wait()

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			goto done
		}
	}
done:

	if received != numPublishers*eventsPerPublisher {
		t.Errorf("expected %d events, got %d", numPublishers*eventsPerPublisher, received)
	}
}
