package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/queue"
)

// MessageMutexKey is the datakey of the persisted in-flight marker.
const MessageMutexKey = "MESSAGE_MUTEX"

// MarkerStore persists the input queue marker through a memory.Store so a
// restarted process sees the turn its predecessor left in flight.
type MarkerStore struct {
	scoped *memory.Scoped
}

// NewMarkerStore creates a marker store for scopeKey.
func NewMarkerStore(store *memory.Store, scopeKey string) *MarkerStore {
	return &MarkerStore{scoped: store.Scoped(Hash(scopeKey))}
}

// Get returns the stored marker or nil.
func (m *MarkerStore) Get(ctx context.Context) (*queue.Marker, error) {
	data, ok, err := m.scoped.Get(ctx, MessageMutexKey)
	if err != nil || !ok {
		return nil, err
	}
	var marker queue.Marker
	if err := json.Unmarshal([]byte(data), &marker); err != nil {
		return nil, fmt.Errorf("failed to decode queue marker: %w", err)
	}
	return &marker, nil
}

// Set stores the marker.
func (m *MarkerStore) Set(ctx context.Context, marker queue.Marker) error {
	b, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return m.scoped.Set(ctx, MessageMutexKey, string(b))
}

// Clear removes the marker.
func (m *MarkerStore) Clear(ctx context.Context) error {
	return m.scoped.Delete(ctx, MessageMutexKey)
}

var _ queue.MarkerStore = (*MarkerStore)(nil)
