// Package dialogmesh provides a high-level façade over the conversational
// runtime: a write-through memory store, per-scope session state, the
// process-wide input queue, the action engine, live turn processing and
// train dialog replay. Most applications interact with this package by:
//  1. Creating a DialogMesh via New() with definitions, an extractor and a scorer
//  2. Registering local API callbacks and session hooks on Callbacks()
//  3. Feeding user messages to HandleInput and replaying train dialogs with Replay
//
// All defaults are safe for local development and testing; production
// deployments typically supply durable storage and a structured logger.
package dialogmesh

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/queue"
	"github.com/hupe1980/dialogmesh/replay"
	"github.com/hupe1980/dialogmesh/runner"
	"github.com/hupe1980/dialogmesh/session"
	"github.com/hupe1980/dialogmesh/storage"
)

// Options configures the DialogMesh instance.
type Options struct {
	// Storage backs all state (defaults to an in-memory store).
	Storage core.Storage

	// Definitions are the entities and actions of the trained model.
	Definitions core.Definitions

	// App is bound to every conversation scope. Optional.
	App *core.App

	// Extractor and Scorer are required.
	Extractor model.Extractor
	Scorer    model.Scorer

	// Callbacks defaults to an empty registry.
	Callbacks *engine.Callbacks

	// QueueTimeout after which an unfinished turn is reclaimed.
	QueueTimeout time.Duration

	// QueueScope, when set, persists the in-flight marker in Storage under
	// this scope key so it survives restarts.
	QueueScope string

	// MaxSteps bounds the actions of a single turn.
	MaxSteps int

	MaxSessionLength time.Duration

	// AuditScope, when set, records every replay in the training history
	// of this scope key.
	AuditScope string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Tracer overrides the per-package default tracers.
	Tracer trace.Tracer
}

// DialogMesh is the high-level façade aggregating the runtime components.
type DialogMesh struct {
	opts    Options
	store   *memory.Store
	engine  *engine.Engine
	queue   *queue.Queue
	runner  *runner.Runner
	replays *replay.Engine
}

// New creates a DialogMesh. It returns core.ErrConfiguration when a required
// option is missing or the definitions are inconsistent.
func New(optFns ...func(o *Options)) (*DialogMesh, error) {
	opts := Options{
		Storage:          storage.NewInMemoryStore(),
		QueueTimeout:     queue.DefaultTimeout,
		MaxSteps:         runner.DefaultMaxSteps,
		MaxSessionLength: session.DefaultMaxSessionLength,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Storage == nil {
		return nil, fmt.Errorf("%w: storage is required", core.ErrConfiguration)
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor is required", core.ErrConfiguration)
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("%w: scorer is required", core.ErrConfiguration)
	}
	if err := opts.Definitions.Validate(); err != nil {
		return nil, err
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Callbacks == nil {
		opts.Callbacks = engine.NewCallbacks()
	}

	store := memory.NewStore(opts.Storage, func(o *memory.Options) { o.Logger = opts.Logger })

	actions := engine.New(func(o *engine.Options) {
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
		if opts.Tracer != nil {
			o.Tracer = opts.Tracer
		}
	})

	q := queue.New(func(o *queue.Options) {
		o.Timeout = opts.QueueTimeout
		o.Logger = opts.Logger
		if opts.QueueScope != "" {
			o.Markers = session.NewMarkerStore(store, opts.QueueScope)
		}
	})

	r := runner.New(store, actions, opts.Extractor, opts.Scorer, opts.Definitions, func(o *runner.Options) {
		o.App = opts.App
		o.Queue = q
		o.MaxSteps = opts.MaxSteps
		o.MaxSessionLength = opts.MaxSessionLength
		o.Logger = opts.Logger
		if opts.Tracer != nil {
			o.Tracer = opts.Tracer
		}
	})

	replays := replay.New(actions, func(o *replay.Options) {
		o.Logger = opts.Logger
		if opts.Tracer != nil {
			o.Tracer = opts.Tracer
		}
		if opts.AuditScope != "" {
			o.AuditLog = replay.NewAuditLog(store, opts.AuditScope)
		}
	})

	return &DialogMesh{
		opts:    opts,
		store:   store,
		engine:  actions,
		queue:   q,
		runner:  r,
		replays: replays,
	}, nil
}

// Callbacks returns the callback registry shared by live turns and replay.
func (m *DialogMesh) Callbacks() *engine.Callbacks { return m.engine.Callbacks() }

// Runner returns the live turn processor.
func (m *DialogMesh) Runner() *runner.Runner { return m.runner }

// Queue returns the process-wide input queue.
func (m *DialogMesh) Queue() *queue.Queue { return m.queue }

// Store returns the write-through memory store.
func (m *DialogMesh) Store() *memory.Store { return m.store }

// Session returns the session state of scopeKey.
func (m *DialogMesh) Session(scopeKey string) *session.State {
	return session.New(m.store, scopeKey, func(o *session.Options) {
		o.MaxSessionLength = m.opts.MaxSessionLength
		o.Logger = m.opts.Logger
	})
}

// HandleInput processes one user message.
func (m *DialogMesh) HandleInput(ctx context.Context, in runner.Input) ([]core.Activity, error) {
	return m.runner.HandleInput(ctx, in)
}

// Replay reconstructs the history of dialog against the entity memory of
// scopeKey. The dialog's own definitions are used when it carries any.
func (m *DialogMesh) Replay(
	ctx context.Context,
	scopeKey string,
	dialog core.TrainDialog,
	opts replay.HistoryOptions,
) (*replay.History, error) {
	if len(dialog.Definitions.Entities) == 0 && len(dialog.Definitions.Actions) == 0 {
		dialog.Definitions = m.opts.Definitions
	}

	return m.replays.GetHistory(ctx, dialog, m.Session(scopeKey).Entities(), opts)
}

// Watch reclaims abandoned turns every interval until ctx is done.
func (m *DialogMesh) Watch(ctx context.Context, interval time.Duration) {
	m.queue.Watch(ctx, interval)
}
