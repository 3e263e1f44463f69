package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (debug, info, warn, error) into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger defines the minimal logging interface.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DialogLogger wraps slog.Logger adding contextual cloning helpers and
// runtime specific helpers for turns, scorer calls and replays. It is cheap
// to copy via the With* methods.
type DialogLogger struct {
	logger         *slog.Logger
	level          LogLevel
	context        map[string]any
	component      string
	conversationID string
	sessionID      string
}

// LoggerConfig configures construction of a DialogLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr, CustomAttrs: map[string]any{}}
}

// NewLogger builds a DialogLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *DialogLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	l := &DialogLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component}
	for k, v := range cfg.CustomAttrs {
		l.context[k] = v
	}
	return l
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *DialogLogger) clone() *DialogLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *DialogLogger) WithContext(key string, value any) *DialogLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (queue, replay, runner, etc.).
func (l *DialogLogger) WithComponent(c string) *DialogLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithConversation attaches conversation and session identifiers.
func (l *DialogLogger) WithConversation(conversationID, sessionID string) *DialogLogger {
	nl := l.clone()
	nl.conversationID = conversationID
	nl.sessionID = sessionID
	return nl
}

func (l *DialogLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.conversationID != "" {
		attrs = append(attrs, slog.String("conversation_id", l.conversationID))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *DialogLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.buildAttrs()...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *DialogLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *DialogLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *DialogLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *DialogLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// TurnLogger is implemented by loggers with turn-level helpers.
type TurnLogger interface {
	LogTurn(conversationID string, steps int, dur time.Duration, err error)
	LogScorerCall(provider, actionID string, dur time.Duration, err error)
}

// ReplayLogger is implemented by loggers with a replay summary helper.
type ReplayLogger interface {
	LogReplay(dialogID string, rounds, activities, discrepancies int, dur time.Duration)
}

var (
	_ TurnLogger   = (*DialogLogger)(nil)
	_ ReplayLogger = (*DialogLogger)(nil)
)

// LogTurn records the outcome of one processed user turn.
func (l *DialogLogger) LogTurn(conversationID string, steps int, dur time.Duration, err error) {
	args := []any{"conversation_id", conversationID, "step_count", steps, "duration", dur, "success", err == nil}
	if err != nil {
		l.Error("Turn failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("Turn completed", args...)
}

// LogScorerCall records the latency and selection of a scorer call.
func (l *DialogLogger) LogScorerCall(provider, actionID string, dur time.Duration, err error) {
	args := []any{"provider", provider, "action_id", actionID, "duration", dur, "success", err == nil}
	if err != nil {
		l.Error("Scorer call failed", append(args, "error", err.Error())...)
		return
	}
	l.Debug("Scorer call completed", args...)
}

// LogReplay records the result of a training dialog replay.
func (l *DialogLogger) LogReplay(dialogID string, rounds, activities, discrepancies int, dur time.Duration) {
	args := []any{"train_dialog_id", dialogID, "rounds", rounds, "activities", activities, "discrepancies", discrepancies, "duration", dur}
	if discrepancies > 0 {
		l.Warn("Replay diverged from recorded entities", args...)
		return
	}
	l.Info("Replay completed", args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new DialogLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *DialogLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// OrNoOp returns l or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
