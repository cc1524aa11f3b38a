// Package featurestore holds the client-side cache of known features.
package featurestore

import (
	"sort"
	"sync"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// Store is the authoritative in-memory table of features keyed by id.
// Values are copied on the way in and out, so a reader never observes a
// feature whose geometry and attributes come from different writes.
type Store struct {
	mu       sync.RWMutex
	features map[string]domain.Feature
}

// New creates an empty Store.
func New() *Store {
	return &Store{features: make(map[string]domain.Feature)}
}

// Upsert replaces the full record for f.ID. Features without an id are ignored.
func (s *Store) Upsert(f domain.Feature) bool {
	if f.ID == "" {
		return false
	}
	c := f.Clone()
	s.mu.Lock()
	s.features[f.ID] = c
	s.mu.Unlock()
	return true
}

// Remove deletes id and reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.features[id]
	delete(s.features, id)
	return ok
}

// Get returns a copy of the feature with the given id.
func (s *Store) Get(id string) (domain.Feature, bool) {
	s.mu.RLock()
	f, ok := s.features[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Feature{}, false
	}
	return f.Clone(), true
}

// All returns copies of every feature ordered by id.
func (s *Store) All() []domain.Feature {
	s.mu.RLock()
	out := make([]domain.Feature, 0, len(s.features))
	for _, f := range s.features {
		out = append(out, f.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplaceAll swaps the whole table in one step.
func (s *Store) ReplaceAll(features []domain.Feature) {
	next := make(map[string]domain.Feature, len(features))
	for _, f := range features {
		if f.ID == "" {
			continue
		}
		next[f.ID] = f.Clone()
	}
	s.mu.Lock()
	s.features = next
	s.mu.Unlock()
}

// Len returns the number of features.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}
