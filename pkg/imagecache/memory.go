package imagecache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// memoryEntry is the internal structure stored in the recency list.
type memoryEntry struct {
	key  string
	data []byte
}

// MemoryStore is a thread-safe, in-memory byte store with a fixed entry count
// and a Least Recently Used eviction policy.
type MemoryStore struct {
	maxEntries int

	mu      sync.Mutex
	ll      *list.List               // Tracks the order of entries (recency).
	entries map[string]*list.Element // Fast key lookups.
}

// NewMemoryStore creates a new entry-count-limited, in-memory LRU store.
// maxEntries must be > 0.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		ll:         list.New(),
		entries:    make(map[string]*list.Element),
	}, nil
}

// Fetch returns the stored bytes for key and marks the entry most recently
// used. A miss returns an error wrapping ErrNotFound.
func (s *MemoryStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	s.ll.MoveToFront(elem)
	return elem.Value.(*memoryEntry).data, nil
}

// Write stores data under key, evicting the least recently used entry if the
// store is over capacity.
func (s *MemoryStore) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.ll.MoveToFront(elem)
		elem.Value.(*memoryEntry).data = data
		return nil
	}

	s.entries[key] = s.ll.PushFront(&memoryEntry{key: key, data: data})
	if s.ll.Len() > s.maxEntries {
		s.evict()
	}
	return nil
}

// Delete removes a key. Missing keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[key]; ok {
		s.ll.Remove(elem)
		delete(s.entries, key)
	}
	return nil
}

// evict removes the least recently used entry. Must be called with the mutex
// held.
func (s *MemoryStore) evict() {
	oldest := s.ll.Back()
	if oldest != nil {
		entry := s.ll.Remove(oldest).(*memoryEntry)
		delete(s.entries, entry.key)
	}
}

// Close is a no-op for the in-memory store but satisfies the Store interface.
func (s *MemoryStore) Close() error {
	return nil
}
