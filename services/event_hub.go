package services

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventImportStarted   = "import:started"
	EventImportProgress  = "import:progress"
	EventImportCompleted = "import:completed"
	EventImportFailed    = "import:failed"
)

// ImportEvent is a point-in-time notification about a run. Events are
// ephemeral: they are broadcast to currently-subscribed observers and
// never persisted or replayed.
type ImportEvent struct {
	Type        string          `json:"type"`
	ImportRunID string          `json:"import_run_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        ImportEventData `json:"data"`
}

type ImportEventData struct {
	FeedURL      string `json:"feed_url,omitempty"`
	NewJobs      *uint  `json:"new_jobs,omitempty"`
	UpdatedJobs  *uint  `json:"updated_jobs,omitempty"`
	FailedJobs   *uint  `json:"failed_jobs,omitempty"`
	TotalFetched *uint  `json:"total_fetched,omitempty"`
	BatchIndex   *int   `json:"batch_index,omitempty"`
	TotalBatches *int   `json:"total_batches,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EventHub broadcasts import events to a dynamic subscriber set. It is
// the process-scoped connection manager for live observers: subscribers
// register and unregister explicitly, and a subscriber that stops
// draining its channel loses events rather than blocking publishers.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]chan ImportEvent
}

const eventBufferSize = 32

func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[string]chan ImportEvent)}
}

// Subscribe registers a new observer and returns its handle and channel.
// Only events published after this call are delivered.
func (h *EventHub) Subscribe() (string, <-chan ImportEvent) {
	id := uuid.New().String()
	ch := make(chan ImportEvent, eventBufferSize)

	h.mu.Lock()
	h.subscribers[id] = ch
	count := len(h.subscribers)
	h.mu.Unlock()

	log.Printf("Event subscriber connected: %s (total: %d)", id, count)
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (h *EventHub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		close(ch)
		log.Printf("Event subscriber disconnected: %s (total: %d)", id, count)
	}
}

// Publish delivers the event to every current subscriber without
// blocking. Delivery is best-effort: a full subscriber buffer drops the
// event for that subscriber only.
func (h *EventHub) Publish(event ImportEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			log.Printf("Dropping event %s for slow subscriber %s", event.Type, id)
		}
	}
}

// SubscriberCount reports the number of connected observers.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
