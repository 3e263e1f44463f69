package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// ErrExpired is returned when a Manager is used after the callback it was
// handed to has returned.
var ErrExpired = errors.New("memory manager used after the callback returned; await results within your callback")

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	Session core.SessionInfo
	Logger  logging.Logger
}

// Manager is the memory façade passed to user callbacks. It reads and
// mutates an in-memory snapshot; the owner persists Current() after the
// callback returns and then calls Expire.
//
// Invalid requests (unknown entities, prebuilt targets, use after expiry)
// are logged and returned as errors without touching memory.
type Manager struct {
	defs    core.Definitions
	prev    core.FilledEntityMap
	cur     core.FilledEntityMap
	session core.SessionInfo
	logger  logging.Logger
	expired atomic.Bool
}

// NewManager creates a façade over prev (the pre-turn snapshot) and cur.
func NewManager(prev, cur core.FilledEntityMap, defs core.Definitions, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if prev == nil {
		prev = core.NewFilledEntityMap()
	}
	if cur == nil {
		cur = core.NewFilledEntityMap()
	}
	return &Manager{defs: defs, prev: prev, cur: cur, session: opts.Session, logger: logging.OrNoOp(opts.Logger)}
}

// Expire marks the manager as no longer usable for mutations.
func (m *Manager) Expire() { m.expired.Store(true) }

// Current returns the mutated map to persist.
func (m *Manager) Current() core.FilledEntityMap { return m.cur }

// SessionInfo returns the session the callback runs in.
func (m *Manager) SessionInfo() core.SessionInfo { return m.session }

func (m *Manager) checkExpired(op, name string) error {
	if m.expired.Load() {
		m.logger.Error("memory manager expired", "operation", op, "entity", name)
		return fmt.Errorf("%s %q: %w", op, name, ErrExpired)
	}
	return nil
}

func (m *Manager) findEntity(name string) (core.Entity, error) {
	e, ok := m.defs.EntityByName(name)
	if !ok {
		err := &core.UnknownEntityError{Name: name}
		m.logger.Error(err.Error())
		return core.Entity{}, err
	}
	return e, nil
}

func (m *Manager) findWritable(op, name string) (core.Entity, error) {
	if err := m.checkExpired(op, name); err != nil {
		return core.Entity{}, err
	}
	e, err := m.findEntity(name)
	if err != nil {
		return core.Entity{}, err
	}
	if e.Type.IsPrebuilt() {
		m.logger.Error("not allowed to set values of pre-built entities", "entity", name)
		return core.Entity{}, fmt.Errorf("entity %s is pre-built and read-only", name)
	}
	return e, nil
}

func stringify(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// RememberEntity stores value for the named entity. Non-string values are
// converted: numbers and booleans to their text form, anything else to JSON.
func (m *Manager) RememberEntity(name string, value any) error {
	e, err := m.findWritable("RememberEntity", name)
	if err != nil {
		return err
	}
	text, err := stringify(value)
	if err != nil {
		m.logger.Error("cannot encode entity value", "entity", name, "error", err)
		return fmt.Errorf("encode value of %s: %w", name, err)
	}
	m.cur.Remember(e.Name, e.ID, core.MemoryValue{UserText: text}, e.IsBucket)
	return nil
}

// RememberEntities stores several values. On a scalar entity only the last
// value survives, which is logged.
func (m *Manager) RememberEntities(name string, values []string) error {
	e, err := m.findWritable("RememberEntities", name)
	if err != nil {
		return err
	}
	if !e.IsBucket {
		m.logger.Warn("RememberEntities called on an entity that isn't multi-value; only the last value will be remembered", "entity", name)
	}
	for _, v := range values {
		m.cur.Remember(e.Name, e.ID, core.MemoryValue{UserText: v}, e.IsBucket)
	}
	return nil
}

// ForgetEntity removes value from the named entity, or the whole entity when
// value is empty.
func (m *Manager) ForgetEntity(name, value string) error {
	if err := m.checkExpired("ForgetEntity", name); err != nil {
		return err
	}
	e, err := m.findEntity(name)
	if err != nil {
		return err
	}
	m.cur.Forget(e.Name, value, e.IsBucket)
	return nil
}

// ForgetAllEntities clears every defined entity except the listed ones.
func (m *Manager) ForgetAllEntities(except []string) error {
	if err := m.checkExpired("ForgetAllEntities", ""); err != nil {
		return err
	}
	for _, e := range m.defs.Entities {
		if slices.Contains(except, e.Name) {
			continue
		}
		m.cur.Forget(e.Name, "", e.IsBucket)
	}
	return nil
}

// CopyEntity replaces the values of to with the values of from. Both must
// be buckets or both scalars.
func (m *Manager) CopyEntity(from, to string) error {
	if err := m.checkExpired("CopyEntity", from); err != nil {
		return err
	}
	src, err := m.findEntity(from)
	if err != nil {
		return err
	}
	dst, err := m.findEntity(to)
	if err != nil {
		return err
	}
	if src.IsBucket != dst.IsBucket {
		m.logger.Error("can't copy between bucket and non-bucket entities", "from", from, "to", to)
		return fmt.Errorf("copy %s to %s: bucket mismatch", from, to)
	}

	m.cur.Forget(dst.Name, "", dst.IsBucket)
	for _, v := range m.cur.ValueAsList(src.Name) {
		if err := m.RememberEntity(dst.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// EntityValue renders the current value of name.
func (m *Manager) EntityValue(name string) (string, bool) { return m.cur.ValueAsString(name) }

// PrevEntityValue renders the pre-turn value of name.
func (m *Manager) PrevEntityValue(name string) (string, bool) { return m.prev.ValueAsString(name) }

// EntityValueAsList returns the current user texts of name.
func (m *Manager) EntityValueAsList(name string) []string { return m.cur.ValueAsList(name) }

// PrevEntityValueAsList returns the pre-turn user texts of name.
func (m *Manager) PrevEntityValueAsList(name string) []string { return m.prev.ValueAsList(name) }

// EntityValueAsPrebuilt returns the current raw values of name.
func (m *Manager) EntityValueAsPrebuilt(name string) []core.MemoryValue {
	return m.cur.ValueAsPrebuilt(name)
}

// PrevEntityValueAsPrebuilt returns the pre-turn raw values of name.
func (m *Manager) PrevEntityValueAsPrebuilt(name string) []core.MemoryValue {
	return m.prev.ValueAsPrebuilt(name)
}

// EntityValueAsNumber parses the current value of name as a number.
func (m *Manager) EntityValueAsNumber(name string) (float64, bool) { return m.cur.ValueAsNumber(name) }

// PrevEntityValueAsNumber parses the pre-turn value of name as a number.
func (m *Manager) PrevEntityValueAsNumber(name string) (float64, bool) {
	return m.prev.ValueAsNumber(name)
}

// EntityValueAsBoolean parses the current value of name as a boolean.
func (m *Manager) EntityValueAsBoolean(name string) (bool, bool) { return m.cur.ValueAsBoolean(name) }

// PrevEntityValueAsBoolean parses the pre-turn value of name as a boolean.
func (m *Manager) PrevEntityValueAsBoolean(name string) (bool, bool) {
	return m.prev.ValueAsBoolean(name)
}

// EntityValueAsObject decodes the current JSON value of name into out.
func (m *Manager) EntityValueAsObject(name string, out any) (bool, error) {
	return m.cur.ValueAsObject(name, out)
}

// PrevEntityValueAsObject decodes the pre-turn JSON value of name into out.
func (m *Manager) PrevEntityValueAsObject(name string, out any) (bool, error) {
	return m.prev.ValueAsObject(name, out)
}

// FilledEntities returns the current filled entities ordered by name.
func (m *Manager) FilledEntities() []core.FilledEntity { return m.cur.FilledEntities() }
