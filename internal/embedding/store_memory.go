package embedding

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an unbounded, never-expiring in-process store.
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore returns an empty unbounded store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the vector cached for text.
func (s *MemoryStore) Get(_ context.Context, text string) ([]float32, bool) {
	v, ok := s.items.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

// Set stores vector for text unless an entry already exists.
func (s *MemoryStore) Set(_ context.Context, text string, vector []float32) error {
	// Add fails when the key exists; the earlier vector stays authoritative.
	_ = s.items.Add(text, vector, gocache.NoExpiration)
	return nil
}

// Len returns the number of cached texts.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
