package queue

import (
	"context"
	"sync"
	"time"
)

// Marker records the turn currently being processed.
type Marker struct {
	ConversationID string    `json:"conversationId"`
	StartedAt      time.Time `json:"startedAt"`
}

// MarkerStore persists the single in-flight marker. Get returns nil when no
// turn is in flight.
type MarkerStore interface {
	Get(ctx context.Context) (*Marker, error)
	Set(ctx context.Context, m Marker) error
	Clear(ctx context.Context) error
}

// InMemoryMarkerStore keeps the marker in process memory.
type InMemoryMarkerStore struct {
	mu     sync.RWMutex
	marker *Marker
}

// NewInMemoryMarkerStore creates an empty marker store.
func NewInMemoryMarkerStore() *InMemoryMarkerStore {
	return &InMemoryMarkerStore{}
}

// Get returns a copy of the current marker.
func (s *InMemoryMarkerStore) Get(_ context.Context) (*Marker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.marker == nil {
		return nil, nil
	}
	m := *s.marker
	return &m, nil
}

// Set replaces the marker.
func (s *InMemoryMarkerStore) Set(_ context.Context, m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = &m
	return nil
}

// Clear removes the marker.
func (s *InMemoryMarkerStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = nil
	return nil
}

var _ MarkerStore = (*InMemoryMarkerStore)(nil)
