package pipeline

import (
	"sync"
)

// State is an observable single value cell.  Set replaces the value and
// pushes it to every subscriber, a subscriber that has not yet read the
// previous value only ever sees the newest one.  No history is kept.
type State[T any] struct {
	mu     sync.RWMutex
	value  T
	set    bool
	nextID int
	subs   map[int]chan T
}

// NewState creates a State holding the zero value of T
func NewState[T any]() *State[T] {
	return &State[T]{
		subs: make(map[int]chan T),
	}
}

// Set stores the value and notifies all subscribers
func (s *State[T]) Set(v T) {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.set = true

	for _, ch := range s.subs {
		offer(ch, v)
	}
}

// Get returns the latest value and whether a value was ever set
func (s *State[T]) Get() (T, bool) {

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value, s.set
}

// Subscribe returns a channel receiving the latest value on every Set.  If a
// value has already been set it is delivered first.  The returned cancel
// func unsubscribes and closes the channel.
func (s *State[T]) Subscribe() (<-chan T, func()) {

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, 1)
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	if s.set {
		ch <- s.value
	}

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			delete(s.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

// offer places v in the 1 slot channel replacing any unread value.  Callers
// hold the State lock so offer is the only writer.
func offer[T any](ch chan T, v T) {

	select {
	case <-ch:
	default:
	}

	ch <- v
}
