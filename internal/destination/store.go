package destination

import "sync"

// Store is the read path the dispatch engine uses to observe destination
// state. A destination may be deactivated between route resolution and send;
// workers re-check Active at pop time.
type Store interface {
	// Get returns the destination and whether it exists at all.
	Get(id string) (Destination, bool)
	// Active reports whether the destination exists and is active.
	Active(id string) bool
}

// StaticStore is a config-backed Store. Apply replaces the whole set, which
// matches config hot reload semantics (the file is the source of truth).
type StaticStore struct {
	mu   sync.RWMutex
	byID map[string]Destination
}

func NewStaticStore(dests []Destination) *StaticStore {
	s := &StaticStore{}
	s.Apply(dests)
	return s
}

func (s *StaticStore) Apply(dests []Destination) {
	m := make(map[string]Destination, len(dests))
	for _, d := range dests {
		m[d.ID] = d
	}
	s.mu.Lock()
	s.byID = m
	s.mu.Unlock()
}

func (s *StaticStore) Get(id string) (Destination, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	return d, ok
}

func (s *StaticStore) Active(id string) bool {
	d, ok := s.Get(id)
	return ok && d.Active
}
