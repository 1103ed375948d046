package notify

import (
	"sync"
	"time"

	"docvault-backend/internal/shared/telemetry"
)

const subscriberBuffer = 64

// Event is the progress message published for a document's upload task.
type Event struct {
	DocumentID   string    `json:"documentId"`
	TaskID       string    `json:"taskId"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	At           time.Time `json:"timestamp"`
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

// Hub is a single-process publish/subscribe registry keyed by document id.
// Delivery is best-effort: subscribers receive events published after they
// subscribe, in publish order per document, with no backlog replay.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers interest in a document's events. The returned cancel
// function releases the subscription and closes the channel; it is safe to
// call more than once.
func (h *Hub) Subscribe(documentID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	set, ok := h.subs[documentID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[documentID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[documentID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, documentID)
			}
		}
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel
}

// Publish delivers an event to all current subscribers of the document.
// Publishing with zero subscribers is a no-op; events are never buffered
// for later delivery. A subscriber that cannot keep up has the event
// dropped rather than blocking the publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[ev.DocumentID]
	if !ok {
		return
	}
	for sub := range set {
		select {
		case sub.ch <- ev:
		default:
			telemetry.Warn("notify.event_dropped", map[string]any{
				"document_id": ev.DocumentID,
				"status":      ev.Status,
			})
		}
	}
}

// SubscriberCount reports the number of active subscribers for a document.
func (h *Hub) SubscriberCount(documentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[documentID])
}
