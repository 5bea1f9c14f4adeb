// Package locks serializes work on a single trade so a follow-up and the
// reconciler never mutate the same position concurrently.
package locks

import "sync"

// Registry hands out one mutex per key. Mutexes are created on demand and
// kept for the process lifetime; the key space (open trades) is small.
type Registry struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[int64]*sync.Mutex)}
}

func (r *Registry) get(id int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}

// Lock acquires the mutex for a trade id and returns its unlock function.
func (r *Registry) Lock(id int64) func() {
	m := r.get(id)
	m.Lock()
	return m.Unlock
}

// Forget drops the mutex for a trade that reached a terminal state. Safe to
// call while nobody holds it.
func (r *Registry) Forget(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, id)
}
