package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/storage"
)

// ErrUnavailable is returned by a CountingStorage while it is down.
var ErrUnavailable = errors.New("storage unavailable")

// CountingStorage wraps an in-memory store counting calls per operation.
// Setting Down makes every call fail with ErrUnavailable.
type CountingStorage struct {
	inner *storage.InMemoryStore

	reads   atomic.Int64
	writes  atomic.Int64
	deletes atomic.Int64

	mu   sync.RWMutex
	down bool
}

// NewCountingStorage creates an empty counting store.
func NewCountingStorage() *CountingStorage {
	return &CountingStorage{inner: storage.NewInMemoryStore()}
}

// SetDown toggles simulated unavailability.
func (s *CountingStorage) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *CountingStorage) isDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.down
}

// Read implements core.Storage.
func (s *CountingStorage) Read(ctx context.Context, keys []string) (map[string]string, error) {
	s.reads.Add(1)
	if s.isDown() {
		return nil, ErrUnavailable
	}
	return s.inner.Read(ctx, keys)
}

// Write implements core.Storage.
func (s *CountingStorage) Write(ctx context.Context, entries map[string]string) error {
	s.writes.Add(1)
	if s.isDown() {
		return ErrUnavailable
	}
	return s.inner.Write(ctx, entries)
}

// Delete implements core.Storage.
func (s *CountingStorage) Delete(ctx context.Context, keys []string) error {
	s.deletes.Add(1)
	if s.isDown() {
		return ErrUnavailable
	}
	return s.inner.Delete(ctx, keys)
}

// Reads returns the number of Read calls.
func (s *CountingStorage) Reads() int { return int(s.reads.Load()) }

// Writes returns the number of Write calls.
func (s *CountingStorage) Writes() int { return int(s.writes.Load()) }

// Deletes returns the number of Delete calls.
func (s *CountingStorage) Deletes() int { return int(s.deletes.Load()) }

// Raw reads a key directly from the backing store, bypassing any cache.
func (s *CountingStorage) Raw(key string) (string, bool) {
	data, _ := s.inner.Read(context.Background(), []string{key})
	v, ok := data[key]
	return v, ok
}

var _ core.Storage = (*CountingStorage)(nil)
