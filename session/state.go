package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
)

// DefaultMaxSessionLength is the inactivity after which a session expires.
const DefaultMaxSessionLength = 20 * time.Minute

const (
	appKey     = "BOTSTATE_APP"
	sessionKey = "BOTSTATE_SESSION"
)

// Status is the lifecycle state of a scope.
type Status int

const (
	// NoSession means no session was ever started for the scope.
	NoSession Status = iota
	// Active means a session is running.
	Active
	// Ended means the last session was ended and none replaced it.
	Ended
)

func (s Status) String() string {
	switch s {
	case NoSession:
		return "NoSession"
	case Active:
		return "Active"
	case Ended:
		return "Ended"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StartHook runs when a session starts, after memory was reset. It may seed
// entity memory.
type StartHook func(ctx context.Context, s *State) error

// EndHook runs at most once per session record before memory is cleared.
// The returned entity names survive the reset.
type EndHook func(ctx context.Context, s *State) (keep []string, err error)

// Options configure a State.
type Options struct {
	// AppScope separates the state of different apps sharing a scope key.
	AppScope string

	MaxSessionLength time.Duration

	OnStart StartHook
	OnEnd   EndHook

	Logger logging.Logger
	Now    func() time.Time
}

// State is the session state of one scope.
type State struct {
	opts     Options
	bot      *memory.Scoped
	entities *memory.EntityMemory
}

// Hash returns the hex SHA-256 of the concatenated parts.
func Hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// New creates the session state of scopeKey (a conversation or user id).
func New(store *memory.Store, scopeKey string, optFns ...func(o *Options)) *State {
	opts := Options{
		MaxSessionLength: DefaultMaxSessionLength,
		Logger:           logging.NoOpLogger{},
		Now:              time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxSessionLength <= 0 {
		opts.MaxSessionLength = DefaultMaxSessionLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	scoped := store.Scoped(Hash(opts.AppScope, scopeKey))
	return &State{
		opts:     opts,
		bot:      scoped,
		entities: memory.NewEntityMemory(scoped, opts.Logger),
	}
}

// Scope returns the hashed key prefix of the state.
func (s *State) Scope() string { return s.bot.Scope() }

// Entities returns the entity memory of the scope.
func (s *State) Entities() *memory.EntityMemory { return s.entities }

func (s *State) read(ctx context.Context, key string, out any) (bool, error) {
	data, ok, err := s.bot.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		s.opts.Logger.Warn("discarding unreadable bot state", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *State) write(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.bot.Set(ctx, key, string(b))
}

// App returns the bound app or nil.
func (s *State) App(ctx context.Context) (*core.App, error) {
	var app core.App
	ok, err := s.read(ctx, appKey, &app)
	if err != nil || !ok {
		return nil, err
	}
	return &app, nil
}

// SetApp binds app to the scope. Entity memory is cleared unless the same
// app id was already bound. A nil app unbinds.
func (s *State) SetApp(ctx context.Context, app *core.App) error {
	cur, err := s.App(ctx)
	if err != nil {
		return err
	}

	if app == nil {
		err = s.bot.Delete(ctx, appKey)
	} else {
		err = s.write(ctx, appKey, app)
	}
	if err != nil {
		return err
	}

	if app == nil || cur == nil || cur.AppID != app.AppID {
		s.opts.Logger.Debug("app changed, clearing entity memory", "scope", s.Scope())
		return s.entities.Clear(ctx)
	}
	return nil
}

// Record returns the session record or nil when none exists.
func (s *State) Record(ctx context.Context) (*core.SessionRecord, error) {
	var rec core.SessionRecord
	ok, err := s.read(ctx, sessionKey, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// Status reports the lifecycle state.
func (s *State) Status(ctx context.Context) (Status, error) {
	rec, err := s.Record(ctx)
	if err != nil {
		return NoSession, err
	}
	switch {
	case rec == nil:
		return NoSession, nil
	case rec.SessionID == "":
		return Ended, nil
	default:
		return Active, nil
	}
}

// InTeach reports whether the active session collects training data.
func (s *State) InTeach(ctx context.Context) (bool, error) {
	rec, err := s.Record(ctx)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.SessionID != "" && rec.InTeach, nil
}

// StartSession makes sessionID the active session. Unless orgSessionID is
// set (continuing an edited or expired session) the current session is
// ended first, which resets entity memory.
func (s *State) StartSession(ctx context.Context, sessionID, conversationID string, inTeach bool, orgSessionID string) error {
	if orgSessionID == "" {
		if err := s.EndSession(ctx); err != nil {
			return err
		}
	}

	if s.opts.OnStart != nil {
		if err := s.opts.OnStart(ctx, s); err != nil {
			s.opts.Logger.Error("session start hook failed", "session_id", sessionID, "error", err)
		}
	}

	s.opts.Logger.Info("session started", "session_id", sessionID, "conversation_id", conversationID,
		"in_teach", inTeach, "org_session_id", orgSessionID)

	return s.write(ctx, sessionKey, core.SessionRecord{
		SessionID:      sessionID,
		ConversationID: conversationID,
		InTeach:        inTeach,
		OrgSessionID:   orgSessionID,
		LastActive:     s.opts.Now(),
	})
}

// EndSession ends the active session. The end hook fires at most once per
// record; entity memory is cleared except for the names the hook keeps.
func (s *State) EndSession(ctx context.Context) error {
	rec, err := s.Record(ctx)
	if err != nil {
		return err
	}

	var keep []string
	if rec != nil && rec.SessionID != "" && !rec.OnEndSessionCalled {
		rec.OnEndSessionCalled = true
		if err := s.write(ctx, sessionKey, rec); err != nil {
			return err
		}
		if s.opts.OnEnd != nil {
			keep, err = s.opts.OnEnd(ctx, s)
			if err != nil {
				s.opts.Logger.Error("session end hook failed", "session_id", rec.SessionID, "error", err)
			}
		}
	}

	if err := s.clearEntities(ctx, keep); err != nil {
		return err
	}

	if rec != nil {
		s.opts.Logger.Info("session ended", "session_id", rec.SessionID, "conversation_id", rec.ConversationID)
		return s.write(ctx, sessionKey, core.SessionRecord{
			ConversationID:     rec.ConversationID,
			OnEndSessionCalled: true,
			LastActive:         rec.LastActive,
		})
	}
	return nil
}

func (s *State) clearEntities(ctx context.Context, keep []string) error {
	if len(keep) == 0 {
		return s.entities.Clear(ctx)
	}
	fm, err := s.entities.FilledEntityMap(ctx)
	if err != nil {
		return err
	}
	kept := core.NewFilledEntityMap()
	for _, name := range keep {
		if fe, ok := fm[name]; ok {
			kept[name] = fe
		}
	}
	return s.entities.Restore(ctx, kept)
}

// SessionID returns the active session of conversationID. expired is true
// when the session has been inactive for longer than MaxSessionLength. An
// empty id means there is no session for the conversation.
func (s *State) SessionID(ctx context.Context, conversationID string) (id string, expired bool, err error) {
	rec, err := s.Record(ctx)
	if err != nil || rec == nil || rec.SessionID == "" {
		return "", false, err
	}
	if conversationID != "" && rec.ConversationID != conversationID {
		return "", false, nil
	}
	expired = s.opts.Now().Sub(rec.LastActive) > s.opts.MaxSessionLength
	return rec.SessionID, expired, nil
}

// Touch refreshes the activity timestamp of the active session.
func (s *State) Touch(ctx context.Context) error {
	rec, err := s.Record(ctx)
	if err != nil || rec == nil || rec.SessionID == "" {
		return err
	}
	rec.LastActive = s.opts.Now()
	return s.write(ctx, sessionKey, rec)
}

// SessionInfo returns the callback view of the active session.
func (s *State) SessionInfo(ctx context.Context, userID, userName string) (core.SessionInfo, error) {
	rec, err := s.Record(ctx)
	if err != nil {
		return core.SessionInfo{}, err
	}
	info := core.SessionInfo{UserID: userID, UserName: userName}
	if rec != nil {
		info.SessionID = rec.SessionID
		info.ConversationID = rec.ConversationID
	}
	return info, nil
}
