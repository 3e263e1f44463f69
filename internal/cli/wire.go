package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/queue"
	"github.com/hupe1980/dialogmesh/runner"
	"github.com/hupe1980/dialogmesh/storage"
	"github.com/hupe1980/dialogmesh/storage/redis"
	"github.com/hupe1980/dialogmesh/storage/sqlite"
)

type app struct {
	cfg     Config
	storage core.Storage
	store   *memory.Store
	logger  *logging.DialogLogger
	close   func() error
}

func wireApp(cfg Config, logOutput io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    logOutput,
		Component: "cli",
	})

	st, closeFn, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	return &app{
		cfg:     cfg,
		storage: st,
		store:   memory.NewStore(st, func(o *memory.Options) { o.Logger = logger }),
		logger:  logger,
		close:   closeFn,
	}, nil
}

// newRunner builds a turn runner honoring the configured queue timeout and
// scoring step bound.
func (a *app) newRunner(defs core.Definitions, actions *engine.Engine, extractor model.Extractor, scorer model.Scorer) *runner.Runner {
	q := queue.New(func(o *queue.Options) {
		o.Timeout = a.cfg.Queue.Timeout
		o.Logger = a.logger.WithComponent("queue")
	})

	return runner.New(a.store, actions, extractor, scorer, defs, func(o *runner.Options) {
		o.Queue = q
		o.MaxSteps = a.cfg.MaxSteps
		o.Logger = a.logger.WithComponent("runner")
	})
}

func openStorage(cfg StorageConfig) (core.Storage, func() error, error) {
	switch cfg.Backend {
	case BackendRedis:
		st, err := redis.New(func(o *redis.Options) {
			o.URL = cfg.Address
			o.Prefix = cfg.Prefix
		})
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case BackendSQLite:
		st, err := sqlite.New(cfg.Address)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return storage.NewInMemoryStore(), func() error { return nil }, nil
	}
}

// echoCallbacks registers a callback for every local API action that
// answers with the call it received, so dialogs replay without bot code.
func echoCallbacks(defs core.Definitions) *engine.Callbacks {
	callbacks := engine.NewCallbacks()

	for _, a := range defs.Actions {
		if a.Kind != core.ActionLocalAPI {
			continue
		}

		name := a.Payload
		callbacks.AddCallback(name, func(_ context.Context, _ *memory.Manager, args ...string) (*core.Response, error) {
			return core.TextResponse(fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))), nil
		})
	}

	return callbacks
}
