package embedding

import (
	"container/list"
	"context"
	"sync"
)

// LRUStore is a bounded store that evicts the least recently used text.
type LRUStore struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type lruEntry struct {
	key   string
	value []float32
}

// NewLRUStore creates a store holding at most capacity texts.
func NewLRUStore(capacity int) *LRUStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUStore{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached vector for text and marks it recently used.
func (s *LRUStore) Get(_ context.Context, text string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[text]; ok {
		s.lru.MoveToFront(elem)
		return elem.Value.(*lruEntry).value, true
	}
	return nil, false
}

// Set stores the vector for text, evicting the oldest entry when over capacity.
func (s *LRUStore) Set(_ context.Context, text string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[text]; ok {
		s.lru.MoveToFront(elem)
		return nil
	}
	s.items[text] = s.lru.PushFront(&lruEntry{key: text, value: vector})
	if s.lru.Len() > s.capacity {
		if oldest := s.lru.Back(); oldest != nil {
			s.lru.Remove(oldest)
			delete(s.items, oldest.Value.(*lruEntry).key)
		}
	}
	return nil
}

// Len returns the number of cached texts.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
