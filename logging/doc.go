// Package logging provides a minimal logging interface and adapters for dialogmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runtime uses for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - DialogLogger with conversation scoped attributes and turn/replay helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := dialogmesh.New(func(o *dialogmesh.Options) { o.Logger = logger })
//
// Arguments after the message are slog style key/value pairs.
package logging
