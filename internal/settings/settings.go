package settings

import (
	"log/slog"
	"sync"
)

// DefaultBaseLimit is used when configuration does not provide one.
const DefaultBaseLimit = 10

type subscriber struct {
	id int
	fn func(int)
}

// Store is a process-wide numeric setting with change notification.
// It is safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	value       int
	subscribers []subscriber
	nextSubID   int
}

// NewStore returns a Store initialised to value (clamped to >= 0).
func NewStore(value int) *Store {
	if value < 0 {
		value = 0
	}
	return &Store{value: value}
}

// Get returns the current value.
func (s *Store) Get() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set updates the value, clamping negative input to zero. Subscribers are
// notified synchronously, and only when the value actually changed.
func (s *Store) Set(value int) {
	if value < 0 {
		value = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if value == s.value {
		return
	}
	s.value = value
	slog.Debug("settings: base limit updated", "value", value)
	for _, sub := range s.subscribers {
		sub.fn(value)
	}
}

// Subscribe registers fn to be called with every new value. Returns a handle
// for Unsubscribe. fn runs with the store's lock held and must not call back
// into the Store.
func (s *Store) Subscribe(fn func(int)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	s.subscribers = append(s.subscribers, subscriber{id: s.nextSubID, fn: fn})
	return s.nextSubID
}

// Unsubscribe removes the subscriber registered under id. Unknown ids are
// ignored.
func (s *Store) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub.id == id {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}
