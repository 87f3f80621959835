package rpcpool

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// traceIDKey is the context key carrying a call's trace ID.
type traceIDKey struct{}

// traceIDCounter generates unique per-process trace IDs.
var traceIDCounter atomic.Uint64

// Logger wraps slog.Logger, embedding *slog.Logger directly and adding a
// couple of domain-specific With* helpers and trace-ID-aware Context
// logging methods instead of a bespoke logging abstraction.
type Logger struct {
	*slog.Logger
	traceEnabled bool
}

// NewLogger creates a Logger from a LoggingConfig.
func NewLogger(cfg LoggingConfig) *Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler), traceEnabled: cfg.TraceEnabled}
}

// WithAddress returns a logger with the peer address attached.
func (l *Logger) WithAddress(addr Address) *Logger {
	return &Logger{Logger: l.Logger.With("address", addr.String()), traceEnabled: l.traceEnabled}
}

// WithAttempt returns a logger with the current retry attempt number
// attached.
func (l *Logger) WithAttempt(attempt int) *Logger {
	return &Logger{Logger: l.Logger.With("attempt", attempt), traceEnabled: l.traceEnabled}
}

// WithTraceID stamps ctx with a fresh trace ID, or returns ctx unchanged if
// it already carries one (so retries within a single WithChannelTimeout
// call share one trace ID instead of minting a new one per attempt).
func WithTraceID(ctx context.Context) context.Context {
	if _, ok := GetTraceID(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey{}, traceIDCounter.Add(1))
}

// GetTraceID retrieves the trace ID stamped on ctx by WithTraceID, if any.
func GetTraceID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(traceIDKey{}).(uint64)
	return id, ok
}

func (l *Logger) traceArgs(ctx context.Context, args []any) []any {
	if !l.traceEnabled {
		return args
	}
	traceID, ok := GetTraceID(ctx)
	if !ok {
		return args
	}
	return append([]any{"trace_id", traceID}, args...)
}

// DebugContext logs at debug level, prefixing trace_id when TraceEnabled and
// ctx carries one.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.Logger.DebugContext(ctx, msg, l.traceArgs(ctx, args)...)
}

// InfoContext logs at info level, prefixing trace_id when TraceEnabled and
// ctx carries one.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Logger.InfoContext(ctx, msg, l.traceArgs(ctx, args)...)
}

// WarnContext logs at warn level, prefixing trace_id when TraceEnabled and
// ctx carries one.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Logger.WarnContext(ctx, msg, l.traceArgs(ctx, args)...)
}

// ErrorContext logs at error level, prefixing trace_id when TraceEnabled and
// ctx carries one.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Logger.ErrorContext(ctx, msg, l.traceArgs(ctx, args)...)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
