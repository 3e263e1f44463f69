package core

import "context"

// Storage is the persistent key/value contract backing all conversation
// state. Values are opaque serialized documents. Keys are caller supplied.
//
// Read returns only the keys that exist; a missing key is not an error.
// Write upserts every entry. Delete ignores keys that do not exist.
type Storage interface {
	Read(ctx context.Context, keys []string) (map[string]string, error)
	Write(ctx context.Context, entries map[string]string) error
	Delete(ctx context.Context, keys []string) error
}
