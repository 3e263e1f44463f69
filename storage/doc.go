// Package storage contains concrete core.Storage implementations. The
// interface itself resides in the core package; depend on core.Storage in
// your code and select an implementation at wiring time.
//
// InMemoryStore lives here. Networked and file backed stores live in
// sub-packages (redis, sqlite) so their drivers are only linked when used.
package storage
