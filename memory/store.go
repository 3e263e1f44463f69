package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// Options configure a Store.
type Options struct {
	Logger logging.Logger
}

// Store is a write-through cache over a core.Storage. Values are opaque
// strings; the empty string means absent.
type Store struct {
	storage core.Storage
	logger  logging.Logger

	mu    sync.RWMutex
	cache map[string]string // only present values are cached
}

// NewStore creates a Store fronting storage.
func NewStore(storage core.Storage, optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		storage: storage,
		logger:  logging.OrNoOp(opts.Logger),
		cache:   make(map[string]string),
	}
}

func (s *Store) cached(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

// Get returns the value of key, reading through to the persistent store on
// a cache miss. ok is false when the key holds no value.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok := s.cached(key); ok {
		s.logger.Debug("memory cache hit", "key", key)
		return v, true, nil
	}

	data, err := s.storage.Read(ctx, []string{key})
	if err != nil {
		return "", false, &core.StorageError{Op: "read", Key: key, Err: err}
	}

	v, ok := data[key]
	if !ok || v == "" {
		return "", false, nil
	}

	s.mu.Lock()
	s.cache[key] = v
	s.mu.Unlock()

	s.logger.Debug("memory read", "key", key)
	return v, true, nil
}

// Set writes value through to the persistent store. An empty value deletes
// the key. Writing the value already cached is a no-op.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if value == "" {
		return s.Delete(ctx, key)
	}

	if v, ok := s.cached(key); ok && v == value {
		return nil
	}

	if err := s.storage.Write(ctx, map[string]string{key: value}); err != nil {
		return &core.StorageError{Op: "write", Key: key, Err: err}
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	s.logger.Debug("memory write", "key", key)
	return nil
}

// Delete removes key from the persistent store. Deleting a key whose cache
// entry is already empty is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, ok := s.cached(key); !ok {
		return nil
	}

	if err := s.storage.Delete(ctx, []string{key}); err != nil {
		return &core.StorageError{Op: "delete", Key: key, Err: err}
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	s.logger.Debug("memory delete", "key", key)
	return nil
}

// Scoped returns a view prefixing keys with scope.
func (s *Store) Scoped(scope string) *Scoped {
	return &Scoped{store: s, scope: scope}
}

// Scoped addresses the keys of one owner scope as "<scope>_<datakey>".
type Scoped struct {
	store *Store
	scope string
}

// Scope returns the owner scope.
func (s *Scoped) Scope() string { return s.scope }

// Key returns the full store key of datakey.
func (s *Scoped) Key(datakey string) string { return s.scope + "_" + datakey }

// Get reads datakey.
func (s *Scoped) Get(ctx context.Context, datakey string) (string, bool, error) {
	return s.store.Get(ctx, s.Key(datakey))
}

// Set writes datakey.
func (s *Scoped) Set(ctx context.Context, datakey, value string) error {
	return s.store.Set(ctx, s.Key(datakey), value)
}

// Delete removes datakey.
func (s *Scoped) Delete(ctx context.Context, datakey string) error {
	return s.store.Delete(ctx, s.Key(datakey))
}
