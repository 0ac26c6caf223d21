package nnfind

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with nnfind-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogBuild logs the outcome of a tree build.
func (l *Logger) LogBuild(ctx context.Context, stats Stats, duration time.Duration, err error) {
	switch {
	case errors.Is(err, ErrCanceled):
		l.LogCanceled(ctx, "build", err)
	case err != nil:
		l.ErrorContext(ctx, "build failed",
			"duration", duration,
			"error", err,
		)
	default:
		l.DebugContext(ctx, "build completed",
			"particles", stats.Particles,
			"atoms", stats.Atoms,
			"nodes", stats.Nodes,
			"leaves", stats.Leaves,
			"max_depth", stats.MaxDepth,
			"images", stats.Images,
			"duration", duration,
		)
	}
}

// LogCanceled logs an operation that stopped because its context ended.
func (l *Logger) LogCanceled(ctx context.Context, op string, err error) {
	l.WarnContext(ctx, op+" canceled",
		"error", err,
	)
}

// LogParallel logs a parallel query run.
func (l *Logger) LogParallel(ctx context.Context, count, workers int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "parallel queries stopped",
			"count", count,
			"workers", workers,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "parallel queries completed",
		"count", count,
		"workers", workers,
		"duration", duration,
	)
}
