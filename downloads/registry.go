package downloads

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
)

// Registry keeps every task in creation order. Entries are only removed
// through Evict.
type Registry struct {
	mu    sync.RWMutex
	order deque.Deque[*Task]
	byID  map[uuid.UUID]*Task
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[uuid.UUID]*Task)}
}

func (r *Registry) Add(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order.PushBack(t)
	r.byID[t.ID()] = t
}

func (r *Registry) Get(id uuid.UUID) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order.Len()
}

// List returns the tasks in creation order. The slice is a copy.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, r.order.Len())
	for i := 0; i < r.order.Len(); i++ {
		out = append(out, r.order.At(i))
	}
	return out
}

// Evict removes every task for which drop returns true and returns them.
func (r *Registry) Evict(drop func(*Task) bool) []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept, evicted []*Task
	for r.order.Len() > 0 {
		t := r.order.PopFront()
		if drop(t) {
			evicted = append(evicted, t)
			delete(r.byID, t.ID())
			continue
		}
		kept = append(kept, t)
	}
	for _, t := range kept {
		r.order.PushBack(t)
	}
	return evicted
}
