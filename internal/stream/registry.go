package stream

import "sync"

// Registry tracks the set of live subscribers. The gateway adds, while
// the broadcaster and per-connection cleanup remove concurrently, so
// every operation is safe under concurrent use. The lock is never held
// across a network send: iteration happens over Snapshot copies.
type Registry struct {
	mu   sync.Mutex
	subs map[Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[Conn]struct{}),
	}
}

func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[c] = struct{}{}
}

// Remove reports whether c was still registered. Removing an absent
// subscriber is a no-op, so eviction and connection cleanup can race
// without coordination.
func (r *Registry) Remove(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[c]
	delete(r.subs, c)
	return ok
}

// Snapshot returns a point-in-time copy of the subscriber set, safe to
// iterate while other goroutines mutate the live set.
func (r *Registry) Snapshot() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conn, 0, len(r.subs))
	for c := range r.subs {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
