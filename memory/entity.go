package memory

import (
	"context"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// EntityStateKey is the datakey holding the serialized entity map of a scope.
const EntityStateKey = "ENTITYSTATE"

// ValueOption decorates a remembered value.
type ValueOption func(v *core.MemoryValue)

// WithBuiltin records the prebuilt type and resolution of a value and derives
// its display text.
func WithBuiltin(builtinType string, resolution map[string]any) ValueOption {
	return func(v *core.MemoryValue) {
		if builtinType == "" {
			return
		}
		v.BuiltinType = builtinType
		v.Resolution = resolution
		v.DisplayText = core.PrebuiltDisplayText(builtinType, resolution, v.UserText)
	}
}

// EntityMemory is the entity map of one scope. Every mutation loads the
// current map (read-through), mutates it and writes it back.
type EntityMemory struct {
	store  *Scoped
	logger logging.Logger
}

// NewEntityMemory creates the entity memory of a scope.
func NewEntityMemory(store *Scoped, logger logging.Logger) *EntityMemory {
	return &EntityMemory{store: store, logger: logging.OrNoOp(logger)}
}

func (m *EntityMemory) load(ctx context.Context) (core.FilledEntityMap, error) {
	data, ok, err := m.store.Get(ctx, EntityStateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return core.NewFilledEntityMap(), nil
	}
	fm, err := core.ParseFilledEntityMap(data)
	if err != nil {
		m.logger.Warn("discarding unreadable entity memory", "scope", m.store.Scope(), "error", err)
		return core.NewFilledEntityMap(), nil
	}
	return fm, nil
}

func (m *EntityMemory) save(ctx context.Context, fm core.FilledEntityMap) error {
	data, err := fm.Serialize()
	if err != nil {
		return err
	}
	return m.store.Set(ctx, EntityStateKey, data)
}

func (m *EntityMemory) update(ctx context.Context, fn func(fm core.FilledEntityMap)) error {
	fm, err := m.load(ctx)
	if err != nil {
		return err
	}
	fn(fm)
	return m.save(ctx, fm)
}

func newValue(text string, opts []ValueOption) core.MemoryValue {
	v := core.MemoryValue{UserText: text}
	for _, o := range opts {
		o(&v)
	}
	return v
}

// RememberEntity stores value for the entity. Bucket entities deduplicate by
// exact text; scalar entities replace their value. Validating that the
// entity exists is the caller's responsibility.
func (m *EntityMemory) RememberEntity(ctx context.Context, name, id, value string, isBucket bool, opts ...ValueOption) error {
	return m.update(ctx, func(fm core.FilledEntityMap) {
		fm.Remember(name, id, newValue(value, opts), isBucket)
	})
}

// RememberMany stores each value in order with the RememberEntity rules.
func (m *EntityMemory) RememberMany(ctx context.Context, name, id string, values []string, isBucket bool, opts ...ValueOption) error {
	return m.update(ctx, func(fm core.FilledEntityMap) {
		for _, v := range values {
			fm.Remember(name, id, newValue(v, opts), isBucket)
		}
	})
}

// Forget removes value (or, when empty, the whole entity) from memory.
func (m *EntityMemory) Forget(ctx context.Context, name, value string, isBucket bool) error {
	return m.update(ctx, func(fm core.FilledEntityMap) {
		fm.Forget(name, value, isBucket)
	})
}

// ForgetEntity forgets value from the positive counterpart of a negative
// ref. Positive refs are a no-op.
func (m *EntityMemory) ForgetEntity(ctx context.Context, ref core.EntityRef, value string, isBucket bool) error {
	if !ref.IsNegative() {
		return nil
	}
	return m.Forget(ctx, ref.Name(), value, isBucket)
}

// Value renders the values of name as a friendly string.
func (m *EntityMemory) Value(ctx context.Context, name string) (string, bool, error) {
	fm, err := m.load(ctx)
	if err != nil {
		return "", false, err
	}
	v, ok := fm.ValueAsString(name)
	return v, ok, nil
}

// ValueAsList returns the user texts of name.
func (m *EntityMemory) ValueAsList(ctx context.Context, name string) ([]string, error) {
	fm, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return fm.ValueAsList(name), nil
}

// ValueAsPrebuilt returns the raw memory values of name.
func (m *EntityMemory) ValueAsPrebuilt(ctx context.Context, name string) ([]core.MemoryValue, error) {
	fm, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return fm.ValueAsPrebuilt(name), nil
}

// FilledEntities returns the filled entities ordered by name.
func (m *EntityMemory) FilledEntities(ctx context.Context) ([]core.FilledEntity, error) {
	fm, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return fm.FilledEntities(), nil
}

// FilledEntityMap returns a snapshot of the map safe to mutate.
func (m *EntityMemory) FilledEntityMap(ctx context.Context) (core.FilledEntityMap, error) {
	fm, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return fm.Clone(), nil
}

// Dump returns named entries for display.
func (m *EntityMemory) Dump(ctx context.Context) ([]core.MemoryEntry, error) {
	fm, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return fm.Dump(), nil
}

// Restore replaces the whole map, typically with the result of a Manager.
func (m *EntityMemory) Restore(ctx context.Context, fm core.FilledEntityMap) error {
	if fm == nil {
		fm = core.NewFilledEntityMap()
	}
	return m.save(ctx, fm)
}

// Clear resets memory to an empty map and writes it through immediately.
func (m *EntityMemory) Clear(ctx context.Context) error {
	return m.save(ctx, core.NewFilledEntityMap())
}
