package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a required runtime option is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownEntity is reported when a memory operation names an entity
	// absent from the active model. Callers log it and continue.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrActionResolution is returned when a labeled action id has no
	// definition. It aborts a replay.
	ErrActionResolution = errors.New("action not found")

	// ErrStorage is returned when the persistent store is unreachable.
	ErrStorage = errors.New("storage unavailable")

	// ErrQueueTimeout is returned to a turn whose admission was abandoned
	// after the in-flight marker expired.
	ErrQueueTimeout = errors.New("input queue timeout")

	// ErrStepLimit is returned when a turn keeps scoring non-terminal actions
	// beyond the configured maximum.
	ErrStepLimit = errors.New("exceeded max scoring steps")
)

// StorageError wraps a failure of the persistent store for a given key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes both ErrStorage and the underlying cause.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// ActionResolutionError names the action id that could not be resolved.
type ActionResolutionError struct {
	ActionID string
}

func (e *ActionResolutionError) Error() string {
	return fmt.Sprintf("can't find action id %s", e.ActionID)
}

// Unwrap returns ErrActionResolution.
func (e *ActionResolutionError) Unwrap() error { return ErrActionResolution }

// UnknownEntityError names the entity an operation referenced.
type UnknownEntityError struct {
	Name string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("can't find entity named: %s", e.Name)
}

// Unwrap returns ErrUnknownEntity.
func (e *UnknownEntityError) Unwrap() error { return ErrUnknownEntity }
