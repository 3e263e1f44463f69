// Package redis provides a core.Storage backed by Redis through go-redis/v9.
// Every conversation blob is stored as a plain string key, optionally
// namespaced with a prefix and expired after a TTL.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	goredis "github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0").
	URL string

	// Prefix is prepended to every key.
	Prefix string

	// TTL expires stored values. Zero keeps them forever.
	TTL time.Duration

	// TLS configuration for secure connections.
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment.
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations.
	WriteTimeout time.Duration
}

// Store implements core.Storage on top of a Redis client.
type Store struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a PING.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		URL:            "redis://localhost:6379",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	redisOpts, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := goredis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewFromClient(client, opts.Prefix, opts.TTL), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(k string) string { return s.prefix + k }

// Read fetches all keys with a single MGET.
func (s *Store) Read(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read keys: %w", err)
	}

	for i, v := range vals {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T for key %s", v, keys[i])
		}
		out[keys[i]] = str
	}

	return out, nil
}

// Write stores all entries in one pipeline.
func (s *Store) Write(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.key(k), v, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write keys: %w", err)
	}

	return nil
}

// Delete removes all keys with a single DEL.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ core.Storage = (*Store)(nil)
