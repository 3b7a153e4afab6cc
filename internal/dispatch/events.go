package dispatch

import (
	"sync"
	"time"

	"teleforward/internal/logstore"
)

type EventType string

const (
	EventQueued    EventType = "delivery.queued"
	EventDelivered EventType = "delivery.delivered"
	EventFailed    EventType = "delivery.failed"
	EventRejected  EventType = "delivery.rejected"
)

// Event is a lightweight in-memory signal emitted by the engine so status
// surfaces can observe delivery progress without polling the outcome log.
//
// Publish never blocks; slow subscribers drop events.
type Event struct {
	Type            EventType
	Time            time.Time
	SourceEventID   string
	DestinationID   string
	DestinationName string
	Outcome         logstore.Outcome
	Class           string
	Attempts        int
	Error           string
}

type eventHub struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  uint64
}

func newEventHub() *eventHub {
	return &eventHub{subs: map[uint64]chan Event{}}
}

func (h *eventHub) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot so publish doesn't hold the lock while attempting sends.
	h.mu.RLock()
	chs := make([]chan Event, 0, len(h.subs))
	for _, ch := range h.subs {
		chs = append(chs, ch)
	}
	h.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If a subscriber unsubscribes concurrently
		// and the channel closes, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (h *eventHub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.seq++
	id := h.seq
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			// Closing is safe because publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
