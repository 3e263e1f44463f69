package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/queue"
	"github.com/hupe1980/dialogmesh/session"
)

// DefaultMaxSteps bounds the actions a single turn may take.
const DefaultMaxSteps = 10

// BotAccount is the default sender of bot activities.
var BotAccount = core.ChannelAccount{ID: "dialogmesh-bot", Name: "dialogmesh"}

// ErrNoAction is returned when the scorer ranks no known action.
var ErrNoAction = errors.New("scorer returned no action")

// Input is one user message.
type Input struct {
	ConversationID string
	UserID         string
	UserName       string
	Text           string
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// App is bound to every scope the runner touches. Optional.
	App *core.App

	// Queue serializes turns. Defaults to a process-local queue.
	Queue *queue.Queue

	// MaxSteps limits the scoring loop of a turn. Values <= 0 fall back to
	// DefaultMaxSteps.
	MaxSteps int

	// MaxSessionLength is the inactivity after which a session expires.
	MaxSessionLength time.Duration

	// AppScope separates the state of apps sharing a scope key.
	AppScope string

	// ScopeKey maps an input to the key its state is stored under.
	// Defaults to the conversation id.
	ScopeKey func(in Input) string

	// NewSessionID generates session ids.
	NewSessionID func() string

	Bot    core.ChannelAccount
	Logger logging.Logger
	Tracer trace.Tracer
	Now    func() time.Time
}

// Runner coordinates live turns. Public methods are safe for concurrent use.
type Runner struct {
	store     *memory.Store
	actions   *engine.Engine
	extractor model.Extractor
	scorer    model.Scorer
	defs      core.Definitions
	opts      Options
}

// New constructs a Runner with optional overrides.
func New(
	store *memory.Store,
	actions *engine.Engine,
	extractor model.Extractor,
	scorer model.Scorer,
	defs core.Definitions,
	optFns ...func(o *Options),
) *Runner {
	opts := Options{
		MaxSteps:         DefaultMaxSteps,
		MaxSessionLength: session.DefaultMaxSessionLength,
		ScopeKey:         func(in Input) string { return in.ConversationID },
		NewSessionID:     core.NewID,
		Bot:              BotAccount,
		Logger:           logging.NoOpLogger{},
		Tracer:           otel.Tracer("dialogmesh/runner"),
		Now:              time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Queue == nil {
		opts.Queue = queue.New(func(o *queue.Options) {
			o.Logger = opts.Logger
			o.Now = opts.Now
		})
	}

	return &Runner{
		store:     store,
		actions:   actions,
		extractor: extractor,
		scorer:    scorer,
		defs:      defs,
		opts:      opts,
	}
}

// Queue returns the admission queue.
func (r *Runner) Queue() *queue.Queue { return r.opts.Queue }

// State returns the session state of the scope in belongs to.
func (r *Runner) State(in Input) *session.State {
	onStart, onEnd := r.actions.SessionHooks(r.defs, in.UserID, in.UserName)

	return session.New(r.store, r.opts.ScopeKey(in), func(o *session.Options) {
		o.AppScope = r.opts.AppScope
		o.MaxSessionLength = r.opts.MaxSessionLength
		o.OnStart = onStart
		o.OnEnd = onEnd
		o.Logger = r.opts.Logger
		o.Now = r.opts.Now
	})
}

// StartSession starts a new session for the input's conversation and returns
// its id. Teach sessions skip extraction and scoring.
func (r *Runner) StartSession(ctx context.Context, in Input, inTeach bool) (string, error) {
	state := r.State(in)
	if err := r.bindApp(ctx, state); err != nil {
		return "", err
	}

	id := r.opts.NewSessionID()
	if err := state.StartSession(ctx, id, in.ConversationID, inTeach, ""); err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}

	return id, nil
}

// EndSession ends the active session of the input's scope.
func (r *Runner) EndSession(ctx context.Context, in Input) error {
	if err := r.State(in).EndSession(ctx); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	return nil
}

// HandleInput processes one user message and returns the bot's replies.
// Structural errors end the session and are returned both as an error and
// as a plain-text reply.
func (r *Runner) HandleInput(ctx context.Context, in Input) ([]core.Activity, error) {
	start := r.opts.Now()

	ctx, span := r.opts.Tracer.Start(ctx, "runner.handle_input", trace.WithAttributes(
		attribute.String("dialogmesh.conversation_id", in.ConversationID),
	))
	defer span.End()

	if err := r.opts.Queue.Acquire(ctx, in.ConversationID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logTurn(in.ConversationID, 0, start, err)

		return nil, err
	}

	defer func() {
		if err := r.opts.Queue.Pop(context.WithoutCancel(ctx), in.ConversationID); err != nil {
			r.opts.Logger.Error("failed to release turn", "conversation_id", in.ConversationID, "error", err)
		}
	}()

	state := r.State(in)

	activities, steps, err := r.process(ctx, state, in)
	span.SetAttributes(attribute.Int("dialogmesh.steps", steps))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if endErr := state.EndSession(context.WithoutCancel(ctx)); endErr != nil {
			r.opts.Logger.Error("failed to end session after error", "conversation_id", in.ConversationID, "error", endErr)
		}

		activities = append(activities, core.Activity{
			ID:   core.NewID(),
			Type: core.ActivityTypeMessage,
			Text: err.Error(),
			From: r.opts.Bot,
		})
	} else {
		span.SetStatus(codes.Ok, "")
	}

	r.logTurn(in.ConversationID, steps, start, err)

	return activities, err
}

func (r *Runner) process(ctx context.Context, state *session.State, in Input) ([]core.Activity, int, error) {
	if err := r.bindApp(ctx, state); err != nil {
		return nil, 0, err
	}

	if err := r.resolveSession(ctx, state, in); err != nil {
		return nil, 0, err
	}

	inTeach, err := state.InTeach(ctx)
	if err != nil {
		return nil, 0, err
	}

	if inTeach {
		r.opts.Logger.Debug("teach session, skipping scoring", "conversation_id", in.ConversationID)
		return nil, 0, state.Touch(ctx)
	}

	info, err := state.SessionInfo(ctx, in.UserID, in.UserName)
	if err != nil {
		return nil, 0, err
	}

	mem := state.Entities()

	extracted, err := r.extractor.Extract(ctx, model.ExtractRequest{Text: in.Text, Definitions: r.defs})
	if err != nil {
		return nil, 0, fmt.Errorf("entity extraction failed: %w", err)
	}

	if err := r.actions.DetectEntities(ctx, in.Text, extracted.PredictedEntities, mem, r.defs, info); err != nil {
		return nil, 0, err
	}

	activities, steps, err := r.score(ctx, in, mem, info)
	if err != nil {
		return activities, steps, err
	}

	return activities, steps, state.Touch(ctx)
}

func (r *Runner) bindApp(ctx context.Context, state *session.State) error {
	if r.opts.App == nil {
		return nil
	}

	if err := state.SetApp(ctx, r.opts.App); err != nil {
		return fmt.Errorf("failed to bind app: %w", err)
	}

	return nil
}

// resolveSession starts a session when none exists and continues an expired
// one under a new id that keeps the old id as its origin.
func (r *Runner) resolveSession(ctx context.Context, state *session.State, in Input) error {
	sessionID, expired, err := state.SessionID(ctx, in.ConversationID)
	if err != nil {
		return err
	}

	switch {
	case sessionID == "":
		return state.StartSession(ctx, r.opts.NewSessionID(), in.ConversationID, false, "")
	case expired:
		r.opts.Logger.Info("session expired, continuing", "session_id", sessionID, "conversation_id", in.ConversationID)

		inTeach, err := state.InTeach(ctx)
		if err != nil {
			return err
		}

		return state.StartSession(ctx, r.opts.NewSessionID(), in.ConversationID, inTeach, sessionID)
	default:
		return nil
	}
}

// score runs the scoring loop until a terminal action is taken.
func (r *Runner) score(
	ctx context.Context,
	in Input,
	mem *memory.EntityMemory,
	info core.SessionInfo,
) ([]core.Activity, int, error) {
	limiter := core.NewStepLimiter(r.opts.MaxSteps)

	var activities []core.Activity

	for {
		if err := limiter.Increment(); err != nil {
			return activities, limiter.Count() - 1, err
		}

		step := limiter.Count() - 1

		action, err := r.selectAction(ctx, in, mem, step)
		if err != nil {
			return activities, step, err
		}

		filled, err := mem.FilledEntityMap(ctx)
		if err != nil {
			return activities, step, err
		}

		resp, err := r.actions.TakeAction(ctx, engine.ActionRequest{
			Action:      action,
			Filled:      filled,
			Memory:      mem,
			Definitions: r.defs,
			Session:     info,
		})
		if err != nil {
			return activities, step, err
		}

		if a := resp.ToActivity(core.NewID(), r.opts.Bot); a != nil {
			activities = append(activities, *a)
		}

		if action.IsTerminal {
			return activities, limiter.Count(), nil
		}
	}
}

func (r *Runner) selectAction(ctx context.Context, in Input, mem *memory.EntityMemory, step int) (core.Action, error) {
	ctx, span := r.opts.Tracer.Start(ctx, "runner.score", trace.WithAttributes(
		attribute.Int("dialogmesh.step", step),
	))
	defer span.End()

	start := r.opts.Now()

	filled, err := mem.FilledEntities(ctx)
	if err != nil {
		return core.Action{}, err
	}

	resp, err := r.scorer.Score(ctx, model.ScoreRequest{
		Text:           in.Text,
		FilledEntities: filled,
		Definitions:    r.defs,
		Step:           step,
	})
	if err != nil {
		err = fmt.Errorf("action scoring failed: %w", err)
		r.logScorerCall("", start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return core.Action{}, err
	}

	best, ok := resp.Best()
	if !ok {
		r.logScorerCall("", start, ErrNoAction)
		span.SetStatus(codes.Error, ErrNoAction.Error())

		return core.Action{}, ErrNoAction
	}

	r.logScorerCall(best.ActionID, start, nil)
	span.SetAttributes(
		attribute.String("dialogmesh.action_id", best.ActionID),
		attribute.Float64("dialogmesh.score", best.Score),
	)

	action, ok := r.defs.ActionByID(best.ActionID)
	if !ok {
		err := &core.ActionResolutionError{ActionID: best.ActionID}
		span.SetStatus(codes.Error, err.Error())

		return core.Action{}, err
	}

	return action, nil
}

func (r *Runner) logTurn(conversationID string, steps int, start time.Time, err error) {
	if tl, ok := r.opts.Logger.(logging.TurnLogger); ok {
		tl.LogTurn(conversationID, steps, r.opts.Now().Sub(start), err)
		return
	}

	if err != nil {
		r.opts.Logger.Error("turn failed", "conversation_id", conversationID, "steps", steps, "error", err)
		return
	}

	r.opts.Logger.Info("turn completed", "conversation_id", conversationID, "steps", steps)
}

func (r *Runner) logScorerCall(actionID string, start time.Time, err error) {
	tl, ok := r.opts.Logger.(logging.TurnLogger)
	if !ok {
		return
	}

	provider := "unknown"
	if d, ok := r.scorer.(interface{ Info() model.Info }); ok {
		provider = d.Info().Provider
	}

	tl.LogScorerCall(provider, actionID, r.opts.Now().Sub(start), err)
}
