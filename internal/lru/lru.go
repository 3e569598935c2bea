// Package lru provides a bounded least-recently-used store with O(1)
// get, set, and evict. The store is queried on every cursor move and
// scroll event in the surrounding UI, so a doubly-linked list plus a
// hash index keeps each operation constant-time.
package lru

import (
	"container/list"
	"sync"
)

// Metrics counts cache effectiveness across the store's lifetime.
type Metrics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Store is a mutex-guarded LRU map from string keys to values.
// Recency is updated on both get-hit and set.
type Store[V any] struct {
	capacity int
	mu       sync.Mutex
	index    map[string]*list.Element
	order    *list.List // front = most recent
	metrics  Metrics
}

type entry[V any] struct {
	key   string
	value V
}

// New creates a store holding at most capacity entries. Capacity below
// one is clamped to one so a misconfigured store still functions.
func New[V any](capacity int) *Store[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Store[V]{
		capacity: capacity,
		index:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[key]; ok {
		s.order.MoveToFront(elem)
		s.metrics.Hits++
		return elem.Value.(*entry[V]).value, true
	}
	s.metrics.Misses++
	var zero V
	return zero, false
}

// Set stores key=value, marking it most recently used and evicting the
// strictly least-recently-used entry when over capacity.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[key]; ok {
		s.order.MoveToFront(elem)
		elem.Value.(*entry[V]).value = value
		return
	}

	for s.order.Len() >= s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		delete(s.index, oldest.Value.(*entry[V]).key)
		s.order.Remove(oldest)
		s.metrics.Evictions++
	}

	s.index[key] = s.order.PushFront(&entry[V]{key: key, value: value})
}

// Remove deletes key, reporting whether it was present.
func (s *Store[V]) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.index[key]
	if !ok {
		return false
	}
	delete(s.index, key)
	s.order.Remove(elem)
	return true
}

// Clear empties the store. Metrics survive.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = make(map[string]*list.Element)
	s.order.Init()
}

// ClearMatching removes every entry whose key satisfies pred and
// returns how many were removed.
func (s *Store[V]) ClearMatching(pred func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		if key := elem.Value.(*entry[V]).key; pred(key) {
			delete(s.index, key)
			s.order.Remove(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Len returns the current entry count.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Capacity returns the configured bound.
func (s *Store[V]) Capacity() int { return s.capacity }

// Snapshot returns a copy of the lifetime metrics.
func (s *Store[V]) Snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}
