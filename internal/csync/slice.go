package csync

import "sync"

// Slice is a thread-safe append-mostly slice.
// It uses a RWMutex for concurrent read access and exclusive write access.
type Slice[T any] struct {
	data []T
	mu   sync.RWMutex
}

// NewSlice creates a new thread-safe slice
func NewSlice[T any]() *Slice[T] {
	return &Slice[T]{
		data: make([]T, 0),
	}
}

// Append adds elements to the end of the slice
func (s *Slice[T]) Append(elements ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, elements...)
}

// Len returns the length of the slice
func (s *Slice[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Last returns the last element and whether the slice is not empty
func (s *Slice[T]) Last() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	if len(s.data) == 0 {
		return zero, false
	}
	return s.data[len(s.data)-1], true
}

// Tail returns a copy of at most n trailing elements.
func (s *Slice[T]) Tail(n int) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.data) {
		n = len(s.data)
	}
	if n <= 0 {
		return nil
	}
	result := make([]T, n)
	copy(result, s.data[len(s.data)-n:])
	return result
}

// Keep drops leading elements so at most n remain.
func (s *Slice[T]) Keep(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if len(s.data) > n {
		s.data = append(s.data[:0], s.data[len(s.data)-n:]...)
	}
}

// Clear removes all elements from the slice
func (s *Slice[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = s.data[:0]
}

// ToSlice returns a copy of the underlying slice
func (s *Slice[T]) ToSlice() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]T, len(s.data))
	copy(result, s.data)
	return result
}
