package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// registryEntry pairs a store with the time it was last created or changed.
type registryEntry struct {
	store      *Store
	lastActive time.Time
}

// Registry keeps one Store per visitor, addressed by a random cart ID.
// Carts live in memory only and are evicted after TTL of inactivity.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry creates a Registry that evicts carts idle for longer than ttl.
// A zero ttl disables eviction.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the cart with the given ID and marks it active.
func (r *Registry) Get(id string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastActive = r.now()
	return e.store, true
}

// Create registers a new empty cart and returns it along with its ID.
func (r *Registry) Create() (string, *Store) {
	id := uuid.New().String()
	s := NewStore()

	r.mu.Lock()
	r.entries[id] = &registryEntry{store: s, lastActive: r.now()}
	r.mu.Unlock()

	s.Subscribe(func([]Item) { r.touch(id) })
	return id, s
}

// Len returns the number of live carts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.lastActive = r.now()
	}
}

// Cleanup evicts carts that have been idle for at least the TTL and returns
// how many were removed.
func (r *Registry) Cleanup(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for id, e := range r.entries {
		if now.Sub(e.lastActive) >= r.ttl {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (r *Registry) StartCleanup(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Cleanup(now)
			}
		}
	}()
}
