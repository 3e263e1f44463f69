package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/memory"
)

// EntityDetectionCallback augments entity memory after predicted entities
// were applied. text is the user input.
type EntityDetectionCallback func(ctx context.Context, text string, predicted []core.PredictedEntity, m *memory.Manager) error

// LocalAction implements an API_LOCAL action. args are the action arguments
// in declared order with entity references substituted. A nil response
// produces no bot activity.
type LocalAction func(ctx context.Context, m *memory.Manager, args ...string) (*core.Response, error)

// SessionStartCallback seeds memory of a new session.
type SessionStartCallback func(ctx context.Context, m *memory.Manager) error

// SessionEndCallback runs before memory of an ending session is cleared and
// returns the entity names to keep.
type SessionEndCallback func(ctx context.Context, m *memory.Manager) (keep []string, err error)

// HookType defines the lifecycle points where hooks run.
type HookType string

const (
	// HookBeforeAction runs before an action is dispatched.
	HookBeforeAction HookType = "before_action"

	// HookAfterAction runs after an action produced its response.
	HookAfterAction HookType = "after_action"

	// HookOnError runs when detection or dispatch fails.
	HookOnError HookType = "on_error"
)

// HookContext describes the event a hook observes.
type HookContext struct {
	Type     HookType
	Action   *core.Action
	Response *core.Response
	Session  core.SessionInfo
	Err      error
}

// Hook observes engine activity. Returning an error from a before or after
// hook aborts the action; errors of OnError hooks are ignored.
type Hook func(ctx context.Context, hc *HookContext) error

// Callbacks is the registry of user code for one bot. It is safe for
// concurrent use.
type Callbacks struct {
	mu sync.RWMutex

	actions      map[string]LocalAction
	detection    EntityDetectionCallback
	sessionStart SessionStartCallback
	sessionEnd   SessionEndCallback
	hooks        map[HookType][]Hook
}

// NewCallbacks creates an empty registry.
func NewCallbacks() *Callbacks {
	return &Callbacks{
		actions: make(map[string]LocalAction),
		hooks:   make(map[HookType][]Hook),
	}
}

// AddCallback registers fn under name, replacing an earlier registration.
func (c *Callbacks) AddCallback(name string, fn LocalAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions[name] = fn
}

// Callback returns the local action registered under name.
func (c *Callbacks) Callback(name string) (LocalAction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.actions[name]
	return fn, ok
}

// Names returns the registered callback names in sorted order.
func (c *Callbacks) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.actions))
	for name := range c.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetEntityDetection registers the entity detection callback.
func (c *Callbacks) SetEntityDetection(fn EntityDetectionCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detection = fn
}

// SetOnSessionStart registers the session start callback.
func (c *Callbacks) SetOnSessionStart(fn SessionStartCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionStart = fn
}

// SetOnSessionEnd registers the session end callback.
func (c *Callbacks) SetOnSessionEnd(fn SessionEndCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionEnd = fn
}

// AddHook registers a lifecycle hook. Hooks of one type run in
// registration order.
func (c *Callbacks) AddHook(t HookType, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[t] = append(c.hooks[t], fn)
}

func (c *Callbacks) entityDetection() EntityDetectionCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detection
}

func (c *Callbacks) onSessionStart() SessionStartCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionStart
}

func (c *Callbacks) onSessionEnd() SessionEndCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionEnd
}

// runHooks executes the hooks of hc.Type sequentially, stopping at the first
// error.
func (c *Callbacks) runHooks(ctx context.Context, hc *HookContext) error {
	c.mu.RLock()
	hooks := append([]Hook(nil), c.hooks[hc.Type]...)
	c.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}
