// Package store holds decoded frames between decode completion and
// presentation, keyed by composite identity. It is the only mutable shared
// structure between the scheduler's decode tasks (writers), the presenter
// (reader), and the eviction pass (deleter), so it carries its own lock.
package store

import "sync"

// Disposable is the release hook every stored frame must expose. The store
// invokes it when an entry is evicted, replaced, or the store is closed, so
// GPU-side resources are never leaked.
type Disposable interface {
	Dispose()
}

// Store maps composite keys to decoded frames. A key being present implies
// its frame is fully decoded and ready for presentation; lookups never
// trigger decodes. Safe for concurrent use.
type Store[K comparable, V Disposable] struct {
	mu      sync.RWMutex
	frames  map[K]V
	frameOf func(K) int
	closed  bool
}

// New creates a Store. frameOf extracts the frame (or segment) index from a
// key; eviction compares against it.
func New[K comparable, V Disposable](frameOf func(K) int) *Store[K, V] {
	return &Store[K, V]{
		frames:  make(map[K]V),
		frameOf: frameOf,
	}
}

// Put inserts a decoded frame. Last write wins: a same-key double write
// disposes the replaced frame. Writes after Close dispose the frame
// immediately, which covers decodes that complete during teardown.
func (s *Store[K, V]) Put(key K, frame V) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		frame.Dispose()
		return
	}
	old, replaced := s.frames[key]
	s.frames[key] = frame
	s.mu.Unlock()

	if replaced {
		old.Dispose()
	}
}

// Get returns the frame for key, if present.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.frames[key]
	return v, ok
}

// Has reports whether key is present.
func (s *Store[K, V]) Has(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.frames[key]
	return ok
}

// Len returns the number of stored frames.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Count returns the number of stored frames whose key satisfies match.
func (s *Store[K, V]) Count(match func(K) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.frames {
		if match(k) {
			n++
		}
	}
	return n
}

// EvictBefore removes and disposes every entry whose key satisfies match and
// whose frame index is strictly less than threshold. match selects the
// stream being evicted; a nil match selects everything.
func (s *Store[K, V]) EvictBefore(threshold int, match func(K) bool) int {
	s.mu.Lock()
	var victims []V
	for k, v := range s.frames {
		if s.frameOf(k) >= threshold {
			continue
		}
		if match != nil && !match(k) {
			continue
		}
		victims = append(victims, v)
		delete(s.frames, k)
	}
	s.mu.Unlock()

	for _, v := range victims {
		v.Dispose()
	}
	return len(victims)
}

// Close disposes every stored frame and marks the store closed. Later Puts
// dispose their frame instead of storing it; later Gets report absent.
func (s *Store[K, V]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	victims := make([]V, 0, len(s.frames))
	for _, v := range s.frames {
		victims = append(victims, v)
	}
	s.frames = make(map[K]V)
	s.mu.Unlock()

	for _, v := range victims {
		v.Dispose()
	}
}
