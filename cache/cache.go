package cache

import "sync"

// Store is a concurrency-safe string-keyed value store. It backs the
// per-unit last-seen ActiveState tracker: each D-Bus signal task records the
// value it last published and compares against it before publishing again.
type Store[T comparable] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func New[T comparable]() *Store[T] {
	return &Store[T]{entries: make(map[string]T)}
}

func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	return value, ok
}

func (s *Store[T]) Set(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
}

// Swap stores value under key and returns the previous value, if any.
func (s *Store[T]) Swap(key string, value T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.entries[key]
	s.entries[key] = value
	return previous, ok
}

// Changed stores value under key and reports whether it differs from the
// previously stored value. A first store always reports true.
func (s *Store[T]) Changed(key string, value T) bool {
	previous, ok := s.Swap(key, value)
	return !ok || previous != value
}

func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}
