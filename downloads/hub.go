package downloads

import (
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 64

// Hub fans task events out to subscribers. A subscriber registered with
// uuid.Nil receives events for every task. Publishing never blocks: a full
// subscriber channel drops the event.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[uuid.UUID]map[chan Event]struct{}),
	}
}

// Subscribe registers a buffered channel for events of task id, or of all
// tasks when id is uuid.Nil.
func (h *Hub) Subscribe(id uuid.UUID) chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		h.subs[id] = make(map[chan Event]struct{})
	}
	h.subs[id][ch] = struct{}{}
	return ch
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.subs[ev.Task.ID], ev)
	if ev.Task.ID != uuid.Nil {
		h.deliver(h.subs[uuid.Nil], ev)
	}
}

func (h *Hub) deliver(set map[chan Event]struct{}, ev Event) {
	for ch := range set {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Unsubscribe removes and closes ch.
func (h *Hub) Unsubscribe(id uuid.UUID, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[id]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, id)
	}
}

// Subscribers counts live subscriptions across all keys.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
