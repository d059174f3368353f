package services

import (
	"testing"
	"time"
)

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub()

	id1, ch1 := hub.Subscribe()
	id2, ch2 := hub.Subscribe()
	defer hub.Unsubscribe(id1)
	defer hub.Unsubscribe(id2)

	if hub.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", hub.SubscriberCount())
	}

	hub.Publish(ImportEvent{Type: EventImportStarted, ImportRunID: "run-1"})

	for _, ch := range []<-chan ImportEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != EventImportStarted || ev.ImportRunID != "run-1" {
				t.Errorf("unexpected event: %+v", ev)
			}
			if ev.Timestamp.IsZero() {
				t.Error("publish should stamp events with a timestamp")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestEventHubLateJoinerMissesEarlierEvents(t *testing.T) {
	hub := NewEventHub()

	hub.Publish(ImportEvent{Type: EventImportStarted, ImportRunID: "run-1"})

	id, ch := hub.Subscribe()
	defer hub.Unsubscribe(id)

	select {
	case ev := <-ch:
		t.Fatalf("late joiner should not receive earlier events, got %+v", ev)
	default:
	}
}

func TestEventHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewEventHub()

	id, ch := hub.Subscribe()
	defer hub.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// more events than the buffer holds, with nobody draining
		for i := 0; i < eventBufferSize+10; i++ {
			hub.Publish(ImportEvent{Type: EventImportProgress, ImportRunID: "run-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// the buffer kept the first eventBufferSize events, the rest were dropped
	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received != eventBufferSize {
		t.Errorf("expected %d buffered events, got %d", eventBufferSize, received)
	}
}

func TestEventHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewEventHub()

	id, ch := hub.Subscribe()
	hub.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.SubscriberCount())
	}

	// double unsubscribe is a no-op
	hub.Unsubscribe(id)
}
