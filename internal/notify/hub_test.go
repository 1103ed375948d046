package notify

import (
	"testing"
	"time"
)

func TestPublishDeliversInOrderPerDocument(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("doc-1")
	defer cancel()

	statuses := []string{"pending", "uploading", "processing", "completed"}
	for _, status := range statuses {
		hub.Publish(Event{DocumentID: "doc-1", TaskID: "task-1", Status: status, At: time.Now()})
	}

	for i, want := range statuses {
		select {
		case got := <-events:
			if got.Status != want {
				t.Fatalf("event %d: expected status %q, got %q", i, want, got.Status)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestPublishSkipsOtherDocuments(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("doc-1")
	defer cancel()

	hub.Publish(Event{DocumentID: "doc-2", Status: "completed"})

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for other document: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNoBacklogForLateSubscribers(t *testing.T) {
	hub := NewHub()

	hub.Publish(Event{DocumentID: "doc-1", Status: "uploading"})

	events, cancel := hub.Subscribe("doc-1")
	defer cancel()

	select {
	case ev := <-events:
		t.Fatalf("late subscriber received buffered event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	hub := NewHub()
	hub.Publish(Event{DocumentID: "doc-1", Status: "completed"})
	if n := hub.SubscriberCount("doc-1"); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
}

func TestCancelIsIdempotentAndReleasesSubscription(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("doc-1")

	if n := hub.SubscriberCount("doc-1"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	cancel()
	cancel()

	if n := hub.SubscriberCount("doc-1"); n != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", n)
	}
	if _, open := <-events; open {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("doc-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			hub.Publish(Event{DocumentID: "doc-1", Status: "uploading", Progress: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe("doc-1")
	defer cancelA()
	b, cancelB := hub.Subscribe("doc-1")
	defer cancelB()

	hub.Publish(Event{DocumentID: "doc-1", Status: "completed"})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Status != "completed" {
				t.Fatalf("subscriber %s: unexpected status %q", name, ev.Status)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s: timed out", name)
		}
	}
}
