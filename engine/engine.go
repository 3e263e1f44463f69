package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/session"
)

// Options configure an Engine.
type Options struct {
	// Callbacks is the registry of user code. Defaults to an empty registry.
	Callbacks *Callbacks

	Logger logging.Logger

	// Tracer creates spans around detection and dispatch.
	Tracer trace.Tracer
}

// Engine dispatches entity detection and actions to user code.
type Engine struct {
	callbacks *Callbacks
	logger    logging.Logger
	tracer    trace.Tracer
}

// New creates an Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbacks()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("dialogmesh/engine")
	}
	return &Engine{
		callbacks: opts.Callbacks,
		logger:    logging.OrNoOp(opts.Logger),
		tracer:    opts.Tracer,
	}
}

// Callbacks returns the registry of the engine.
func (e *Engine) Callbacks() *Callbacks { return e.callbacks }

func (e *Engine) fail(ctx context.Context, span trace.Span, hc *HookContext, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	hc.Type = HookOnError
	hc.Err = err
	_ = e.callbacks.runHooks(ctx, hc)
	return err
}

// DetectEntities applies predicted entities to mem and runs the entity
// detection callback.
//
// A predicted negative entity forgets the matching value of its positive
// counterpart; any other prediction is remembered, prebuilt types keeping
// their resolution. Predictions of unknown entities are logged and skipped.
// The callback sees the pre-input memory through the Prev* accessors.
func (e *Engine) DetectEntities(
	ctx context.Context,
	text string,
	predicted []core.PredictedEntity,
	mem *memory.EntityMemory,
	defs core.Definitions,
	info core.SessionInfo,
) error {
	ctx, span := e.tracer.Start(ctx, "engine.detect_entities", trace.WithAttributes(
		attribute.Int("dialogmesh.predicted_entities", len(predicted)),
		attribute.String("dialogmesh.session_id", info.SessionID),
	))
	defer span.End()

	hc := &HookContext{Session: info}

	prev, err := mem.FilledEntityMap(ctx)
	if err != nil {
		return e.fail(ctx, span, hc, err)
	}

	for _, p := range predicted {
		ent, ok := defs.EntityByID(p.EntityID)
		if !ok {
			e.logger.Warn("predicted entity is not defined", "entity_id", p.EntityID, "text", p.EntityText)
			continue
		}

		if ent.IsNegative() {
			ref := core.ResolveEntityRef(ent, defs)
			isBucket := ent.IsBucket
			if pos, ok := defs.EntityByID(ent.PositiveID); ok {
				isBucket = pos.IsBucket
			}
			err = mem.ForgetEntity(ctx, ref, p.EntityText, isBucket)
		} else {
			err = mem.RememberEntity(ctx, ent.Name, ent.ID, p.EntityText, ent.IsBucket,
				memory.WithBuiltin(p.BuiltinType, p.Resolution))
		}
		if err != nil {
			return e.fail(ctx, span, hc, err)
		}
	}

	detect := e.callbacks.entityDetection()
	if detect == nil {
		return nil
	}

	cur, err := mem.FilledEntityMap(ctx)
	if err != nil {
		return e.fail(ctx, span, hc, err)
	}

	m := e.newManager(prev, cur, defs, info)
	err = detect(ctx, text, predicted, m)
	m.Expire()
	if err != nil {
		return e.fail(ctx, span, hc, fmt.Errorf("entity detection callback failed: %w", err))
	}

	if err := mem.Restore(ctx, m.Current()); err != nil {
		return e.fail(ctx, span, hc, err)
	}
	return nil
}

// ActionRequest is the input of TakeAction.
type ActionRequest struct {
	Action core.Action

	// Filled is the entity state entity references are substituted from.
	Filled core.FilledEntityMap

	// Memory receives the changes a LocalAction makes. When nil the action
	// runs against a copy of Filled and its changes are discarded.
	Memory *memory.EntityMemory

	Definitions core.Definitions
	Session     core.SessionInfo
}

// TakeAction produces the response of an action. A nil response means the
// action has nothing to say.
//
// Rendering failures and undefined callbacks do not fail the action: they
// produce a text response describing the problem, so the conversation shows
// what went wrong. Errors returned by a LocalAction and storage failures are
// returned.
func (e *Engine) TakeAction(ctx context.Context, req ActionRequest) (*core.Response, error) {
	action := req.Action
	ctx, span := e.tracer.Start(ctx, "engine.take_action", trace.WithAttributes(
		attribute.String("dialogmesh.action_id", action.ID),
		attribute.String("dialogmesh.action_kind", string(action.Kind)),
		attribute.Bool("dialogmesh.action_terminal", action.IsTerminal),
	))
	defer span.End()

	filled := req.Filled
	if filled == nil {
		filled = core.NewFilledEntityMap()
	}

	hc := &HookContext{Type: HookBeforeAction, Action: &action, Session: req.Session}
	if err := e.callbacks.runHooks(ctx, hc); err != nil {
		return nil, e.fail(ctx, span, hc, err)
	}

	var (
		resp *core.Response
		err  error
	)
	switch action.Kind {
	case core.ActionCard:
		resp = e.takeCardAction(action, filled)
	case core.ActionLocalAPI:
		resp, err = e.takeLocalAction(ctx, req, filled)
	default:
		resp = core.TextResponse(filled.Substitute(action.Payload))
	}
	if err != nil {
		return nil, e.fail(ctx, span, hc, err)
	}

	hc.Type = HookAfterAction
	hc.Response = resp
	if err := e.callbacks.runHooks(ctx, hc); err != nil {
		return nil, e.fail(ctx, span, hc, err)
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func substituteArguments(args []core.ActionArgument, filled core.FilledEntityMap) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, filled.SubstituteEntities(a.Value))
	}
	return out
}

func (e *Engine) takeCardAction(action core.Action, filled core.FilledEntityMap) *core.Response {
	data := make(map[string]any, len(filled)+len(action.Arguments))
	for _, name := range filled.Names() {
		v, _ := filled.ValueAsString(name)
		data[name] = v
	}
	for _, a := range action.Arguments {
		data[a.Parameter] = filled.SubstituteEntities(a.Value)
	}

	rendered, err := util.RenderTemplate(action.Payload, data)
	if err != nil {
		e.logger.Error("failed to render card", "action_id", action.ID, "error", err)
		return core.TextResponse(fmt.Sprintf("Failed to render template: %v", err))
	}

	var content any
	if err := json.Unmarshal([]byte(rendered), &content); err != nil {
		e.logger.Error("card template is not valid JSON", "action_id", action.ID, "error", err)
		return core.TextResponse(fmt.Sprintf("Failed to render template: %v", err))
	}

	return &core.Response{Activity: &core.Activity{
		Type: core.ActivityTypeMessage,
		Attachments: []core.Attachment{{
			ContentType: core.AdaptiveCardContentType,
			Content:     content,
		}},
	}}
}

func (e *Engine) takeLocalAction(ctx context.Context, req ActionRequest, filled core.FilledEntityMap) (*core.Response, error) {
	name := req.Action.Payload
	fn, ok := e.callbacks.Callback(name)
	if !ok {
		e.logger.Error("local API callback is not registered", "callback", name, "action_id", req.Action.ID)
		return core.TextResponse(fmt.Sprintf("API %q is undefined", name)), nil
	}

	args := substituteArguments(req.Action.Arguments, filled)

	var (
		prev core.FilledEntityMap
		err  error
	)
	if req.Memory != nil {
		prev, err = req.Memory.FilledEntityMap(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		prev = filled.Clone()
	}

	m := e.newManager(prev, prev.Clone(), req.Definitions, req.Session)
	resp, err := fn(ctx, m, args...)
	m.Expire()
	if err != nil {
		return nil, fmt.Errorf("local API %s failed: %w", name, err)
	}

	if req.Memory != nil {
		if err := req.Memory.Restore(ctx, m.Current()); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (e *Engine) newManager(prev, cur core.FilledEntityMap, defs core.Definitions, info core.SessionInfo) *memory.Manager {
	return memory.NewManager(prev, cur, defs, func(o *memory.ManagerOptions) {
		o.Session = info
		o.Logger = e.logger
	})
}

// SessionHooks adapts the session callbacks to session.State hooks bound to
// the definitions of the active model.
func (e *Engine) SessionHooks(defs core.Definitions, userID, userName string) (session.StartHook, session.EndHook) {
	start := func(ctx context.Context, s *session.State) error {
		fn := e.callbacks.onSessionStart()
		if fn == nil {
			return nil
		}
		_, err := e.withManager(ctx, s, defs, userID, userName, func(m *memory.Manager) ([]string, error) {
			return nil, fn(ctx, m)
		})
		return err
	}

	end := func(ctx context.Context, s *session.State) ([]string, error) {
		fn := e.callbacks.onSessionEnd()
		if fn == nil {
			return nil, nil
		}
		return e.withManager(ctx, s, defs, userID, userName, func(m *memory.Manager) ([]string, error) {
			return fn(ctx, m)
		})
	}

	return start, end
}

func (e *Engine) withManager(
	ctx context.Context,
	s *session.State,
	defs core.Definitions,
	userID, userName string,
	fn func(m *memory.Manager) ([]string, error),
) ([]string, error) {
	info, err := s.SessionInfo(ctx, userID, userName)
	if err != nil {
		return nil, err
	}
	prev, err := s.Entities().FilledEntityMap(ctx)
	if err != nil {
		return nil, err
	}

	m := e.newManager(prev, prev.Clone(), defs, info)
	keep, err := fn(m)
	m.Expire()
	if err != nil {
		return nil, err
	}
	return keep, s.Entities().Restore(ctx, m.Current())
}
