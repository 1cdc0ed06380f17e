// Package session holds the in-memory session descriptor and the timeout
// policy. The descriptor has a single writer (the auth service) and any
// number of observers; observers always receive the latest value first.
package session

import (
	"sync"

	"github.com/xavim/fieldentry/internal/models"
)

// State is a single-writer, multi-reader holder of the current session
// descriptor with broadcast-with-last-value change notification. It is an
// explicitly constructed instance owned by the composition root, not a
// package-level singleton.
type State struct {
	mu      sync.RWMutex
	current models.Session
	subs    map[int]chan models.Session
	nextID  int
}

// NewState creates a State seeded with the given descriptor.
func NewState(initial models.Session) *State {
	return &State{
		current: initial,
		subs:    make(map[int]chan models.Session),
	}
}

// Current returns a snapshot of the session descriptor.
func (s *State) Current() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish replaces the descriptor wholesale and notifies every observer.
// Observers that have not drained their channel are conflated to the
// latest value, so a slow reader never blocks the writer or sees a torn
// update.
func (s *State) Publish(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	for _, ch := range s.subs {
		select {
		case ch <- sess:
		default:
			// Drop the stale buffered value and replace it.
			select {
			case <-ch:
			default:
			}
			ch <- sess
		}
	}
}

// Observe registers an observer. The returned channel immediately carries
// the current descriptor, then the latest value after every publish. The
// cancel function must be called when the observer is done.
func (s *State) Observe() (<-chan models.Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan models.Session, 1)
	ch <- s.current
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
