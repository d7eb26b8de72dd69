package daemon

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types on the daemon event stream.
const (
	EventChat     = "chat"     // user or assistant message
	EventCrisis   = "crisis"   // safety gate triggered
	EventFallback = "fallback" // non-generated reply served
	EventCost     = "cost"     // ledger update
	EventStatus   = "status"   // worker/status info
	EventError    = "error"    // error notification
)

// Event is a single event broadcast to API subscribers.
type Event struct {
	Type    string  `json:"type"`
	Role    string  `json:"role,omitempty"`    // for chat: "user" or "assistant"
	Content string  `json:"content,omitempty"` // chat content
	Message string  `json:"message,omitempty"` // status/error text
	Persona string  `json:"persona,omitempty"` // for chat: resolved persona
	USD     float64 `json:"usd,omitempty"`     // for cost events
	TS      string  `json:"ts"`
}

// MarshalEvent serializes an event to JSON with timestamp.
func (e Event) MarshalEvent() []byte {
	if e.TS == "" {
		e.TS = time.Now().Format(time.RFC3339)
	}
	b, _ := json.Marshal(e)
	return b
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// EventBus fans out events to connected API clients. Thread-safe;
// subscribers that fall behind lose events rather than blocking
// publishers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	// Ring buffer so new connections get recent context.
	recent    []Event
	recentMu  sync.RWMutex
	maxRecent int
}

// NewEventBus creates an event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*subscriber]struct{}),
		maxRecent:   200,
	}
}

// Publish sends an event to all subscribers. Non-blocking.
func (eb *EventBus) Publish(e Event) {
	if e.TS == "" {
		e.TS = time.Now().Format(time.RFC3339)
	}

	eb.recentMu.Lock()
	eb.recent = append(eb.recent, e)
	if len(eb.recent) > eb.maxRecent {
		eb.recent = eb.recent[len(eb.recent)-eb.maxRecent:]
	}
	eb.recentMu.Unlock()

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for sub := range eb.subscribers {
		select {
		case sub.ch <- e:
		default:
			// slow subscriber, dropped; they catch up via Recent
		}
	}
}

// Subscribe registers a new subscriber. The caller must Unsubscribe
// with the returned done channel when finished.
func (eb *EventBus) Subscribe() (<-chan Event, chan struct{}) {
	sub := &subscriber{
		ch:   make(chan Event, 64),
		done: make(chan struct{}),
	}

	eb.mu.Lock()
	eb.subscribers[sub] = struct{}{}
	eb.mu.Unlock()

	return sub.ch, sub.done
}

// Unsubscribe removes a subscriber.
func (eb *EventBus) Unsubscribe(done chan struct{}) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for sub := range eb.subscribers {
		if sub.done == done {
			close(sub.ch)
			delete(eb.subscribers, sub)
			return
		}
	}
}

// Recent returns the last n events from the ring buffer.
func (eb *EventBus) Recent(n int) []Event {
	eb.recentMu.RLock()
	defer eb.recentMu.RUnlock()

	if n <= 0 || n > len(eb.recent) {
		n = len(eb.recent)
	}
	result := make([]Event, n)
	copy(result, eb.recent[len(eb.recent)-n:])
	return result
}

// SubscriberCount returns the number of connected subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}
