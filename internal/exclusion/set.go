// Package exclusion tracks candidate ids a viewer should not see again
// during the current discovery session.
package exclusion

import (
	"slices"
	"sync"
)

// Set is a session-scoped set of candidate ids.
// It starts empty, grows on swipes, blocks and already-seen candidates, and
// is cleared only by Reset. Thread-safe via RWMutex.
type Set struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// New returns an empty set.
func New() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Add inserts id. Empty ids are ignored.
func (s *Set) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// AddAll inserts every id.
func (s *Set) AddAll(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Has reports whether id is excluded.
func (s *Set) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of excluded ids.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the excluded ids in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Reset empties the set.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

// Filter returns the elements of items whose id is not excluded, in order.
func Filter[T any](s *Set, items []T, id func(T) string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kept := make([]T, 0, len(items))
	for _, item := range items {
		if _, excluded := s.ids[id(item)]; !excluded {
			kept = append(kept, item)
		}
	}
	return kept
}
