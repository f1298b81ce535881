// Package memstore implements the fact store port as a bounded
// in-memory ring buffer. When the buffer is full the single oldest
// event is evicted, so the store is a sliding window over insertion
// order. All methods are safe for concurrent use.
package memstore

import (
	"context"
	"sync"

	"github.com/hooktrace/hooktrace/internal/domain/event"
	"github.com/hooktrace/hooktrace/internal/port/factstore"
)

// DefaultCapacity bounds the store when no explicit capacity is given.
const DefaultCapacity = 50000

// Store is a mutex-guarded ring buffer of classified events.
type Store struct {
	mu    sync.RWMutex
	items []event.Event
	cap   int
	head  int // index of the oldest element
	count int // number of elements currently stored

	// OnEvict, when set, is called after an event is evicted. Used to
	// feed the eviction metric. Called under the write lock.
	OnEvict func(ev *event.Event)
}

// New creates a Store holding at most capacity events. Capacity values
// below 1 fall back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		items: make([]event.Event, capacity),
		cap:   capacity,
	}
}

// Append inserts one event, evicting the oldest when full. Events are
// never mutated after append.
func (s *Store) Append(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writePos := (s.head + s.count) % s.cap
	if s.count == s.cap {
		evicted := s.items[s.head]
		s.items[s.head] = *ev
		s.head = (s.head + 1) % s.cap
		if s.OnEvict != nil {
			s.OnEvict(&evicted)
		}
		return nil
	}

	s.items[writePos] = *ev
	s.count++
	return nil
}

// Query returns a snapshot copy of all events matching the filter, in
// insertion order. An empty result is returned when nothing matches.
func (s *Store) Query(_ context.Context, filter factstore.Filter) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]event.Event, 0)
	for i := 0; i < s.count; i++ {
		ev := &s.items[(s.head+i)%s.cap]
		if filter.Matches(ev) {
			result = append(result, *ev)
		}
	}
	return result, nil
}

// Count returns the number of stored events.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count, nil
}

var _ factstore.Store = (*Store)(nil)
