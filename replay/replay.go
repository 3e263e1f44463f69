package replay

import (
	"context"
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
)

// TrainerAccount is the sender of replayed bot activities.
var TrainerAccount = core.ChannelAccount{ID: "dialogmesh-trainer", Name: "dialogmesh-trainer"}

// Options configure an Engine.
type Options struct {
	Logger logging.Logger
	Tracer trace.Tracer

	// AuditLog, when set, records every replay.
	AuditLog *AuditLog
}

// HistoryOptions control a single replay.
type HistoryOptions struct {
	// UpdateState rebuilds entity memory while replaying and enables the
	// discrepancy check.
	UpdateState bool

	// IgnoreLastExtraction skips the discrepancy check of the final round,
	// which is being edited.
	IgnoreLastExtraction bool

	UserID   string
	UserName string
}

// History is the reconstructed conversation.
type History struct {
	Activities    []core.Activity    `json:"history" yaml:"history"`
	Discrepancies []string           `json:"discrepancies" yaml:"discrepancies"`
	PrevMemories  []core.MemoryEntry `json:"prevMemories" yaml:"prevMemories"`
	Memories      []core.MemoryEntry `json:"memories" yaml:"memories"`
	DialogMode    core.DialogMode    `json:"dialogMode" yaml:"dialogMode"`
}

// Engine replays train dialogs.
type Engine struct {
	actions *engine.Engine
	opts    Options
}

// New creates a replay engine dispatching detection and actions to actions.
func New(actions *engine.Engine, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("dialogmesh/replay")
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Engine{actions: actions, opts: opts}
}

// GetHistory replays dialog against mem.
//
// An action id without a definition aborts the replay with a
// *core.ActionResolutionError. A discrepancy is not an error: it ends the
// replay early and is returned in History.Discrepancies.
func (e *Engine) GetHistory(ctx context.Context, dialog core.TrainDialog, mem *memory.EntityMemory, opts HistoryOptions) (*History, error) {
	start := time.Now()
	ctx, span := e.opts.Tracer.Start(ctx, "replay.get_history", trace.WithAttributes(
		attribute.String("dialogmesh.dialog_id", dialog.ID),
		attribute.Int("dialogmesh.rounds", len(dialog.Rounds)),
		attribute.Bool("dialogmesh.update_state", opts.UpdateState),
	))
	defer span.End()

	h, err := e.replay(ctx, dialog, mem, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.opts.Logger.Error("replay failed", "dialog_id", dialog.ID, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("dialogmesh.activities", len(h.Activities)),
		attribute.Int("dialogmesh.discrepancies", len(h.Discrepancies)),
	)
	span.SetStatus(codes.Ok, "")

	if rl, ok := e.opts.Logger.(logging.ReplayLogger); ok {
		rl.LogReplay(dialog.ID, len(dialog.Rounds), len(h.Activities), len(h.Discrepancies), time.Since(start))
	} else {
		e.opts.Logger.Info("replay completed",
			"dialog_id", dialog.ID,
			"rounds", len(dialog.Rounds),
			"activities", len(h.Activities),
			"discrepancies", len(h.Discrepancies),
			"dialog_mode", string(h.DialogMode),
			"duration", time.Since(start),
		)
	}

	if e.opts.AuditLog != nil {
		if err := e.opts.AuditLog.Append(ctx, NewAuditRecord(dialog, h)); err != nil {
			e.opts.Logger.Warn("failed to record training history", "dialog_id", dialog.ID, "error", err)
		}
	}

	return h, nil
}

func (e *Engine) replay(ctx context.Context, dialog core.TrainDialog, mem *memory.EntityMemory, opts HistoryOptions) (*History, error) {
	defs := dialog.Definitions
	info := core.SessionInfo{ConversationID: dialog.ID, UserID: opts.UserID, UserName: opts.UserName}
	user := core.ChannelAccount{ID: opts.UserID, Name: opts.UserName}

	h := &History{
		Activities:    []core.Activity{},
		Discrepancies: []string{},
		PrevMemories:  []core.MemoryEntry{},
	}

	if opts.UpdateState {
		if err := mem.Clear(ctx); err != nil {
			return nil, err
		}
	}

	var actionMemory *memory.EntityMemory
	if opts.UpdateState {
		actionMemory = mem
	}

	lastTerminal := false
	last := len(dialog.Rounds) - 1

rounds:
	for r, round := range dialog.Rounds {
		text := round.UserText()
		h.Activities = append(h.Activities, core.Activity{
			ID:   activityID(dialog.ID, r, 0, "user"),
			Type: core.ActivityTypeMessage,
			Text: text,
			From: user,
			ChannelData: &core.ChannelData{
				SenderType:       core.SenderUser,
				RoundIndex:       r,
				ScoreIndex:       0,
				ClientActivityID: activityID(dialog.ID, r, 0, "client"),
			},
		})

		if opts.UpdateState {
			prev, err := mem.Dump(ctx)
			if err != nil {
				return nil, err
			}
			h.PrevMemories = prev

			var predicted []core.PredictedEntity
			if len(round.ExtractorStep.TextVariations) > 0 {
				predicted = round.ExtractorStep.TextVariations[0].LabelEntities
			}
			if err := e.actions.DetectEntities(ctx, text, predicted, mem, defs, info); err != nil {
				return nil, fmt.Errorf("round %d: %w", r, err)
			}

			if !opts.IgnoreLastExtraction || r != last {
				live, err := mem.FilledEntityMap(ctx)
				if err != nil {
					return nil, err
				}
				if lines := Discrepancies(round.RecordedEntities(), live, defs); len(lines) > 0 {
					h.Discrepancies = append([]string{"", "User Input Step:", text, ""}, lines...)
					e.opts.Logger.Warn("replay diverged from recorded entities", "dialog_id", dialog.ID, "round", r)
					break rounds
				}
			}
		}

		for s, step := range round.ScorerSteps {
			action, ok := defs.ActionByID(step.LabelAction)
			if !ok {
				return nil, &core.ActionResolutionError{ActionID: step.LabelAction}
			}
			lastTerminal = action.IsTerminal

			resp, err := e.actions.TakeAction(ctx, engine.ActionRequest{
				Action:      action,
				Filled:      core.FilledEntityMapFrom(step.Input.FilledEntities, defs),
				Memory:      actionMemory,
				Definitions: defs,
				Session:     info,
			})
			if err != nil {
				return nil, fmt.Errorf("round %d step %d: %w", r, s, err)
			}

			act := resp.ToActivity(activityID(dialog.ID, r, s, "bot"), TrainerAccount)
			if act == nil {
				continue
			}
			act.ChannelData = &core.ChannelData{SenderType: core.SenderBot, RoundIndex: r, ScoreIndex: s}
			h.Activities = append(h.Activities, *act)
		}
	}

	if opts.UpdateState {
		memories, err := mem.Dump(ctx)
		if err != nil {
			return nil, err
		}
		h.Memories = memories
	}

	h.DialogMode = core.DialogModeScorer
	if lastTerminal {
		h.DialogMode = core.DialogModeWait
	}
	return h, nil
}
