package gridstore

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/gridstore/internal/chunk"
)

// Logger wraps slog.Logger with gridstore-specific context.
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithGrid adds the grid dimensions to the logger.
func (l *Logger) WithGrid(rows, cols int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rows", rows, "cols", cols),
	}
}

// WithChunk adds a chunk field to the logger.
func (l *Logger) WithChunk(id ChunkID) *Logger {
	return &Logger{
		Logger: l.Logger.With("chunk", id.String()),
	}
}

// LogSwapOut logs a chunk written to the swap store.
func (l *Logger) LogSwapOut(ctx context.Context, id chunk.ID, bytes int, d time.Duration, err error) {
	l = l.WithChunk(id)
	if err != nil {
		l.ErrorContext(ctx, "swap out failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "swap out completed",
			"bytes", bytes,
			"duration", d,
		)
	}
}

// LogSwapIn logs a chunk restored from the swap store.
func (l *Logger) LogSwapIn(ctx context.Context, id chunk.ID, bytes int, d time.Duration, err error) {
	l = l.WithChunk(id)
	if err != nil {
		l.WarnContext(ctx, "swap in failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "swap in completed",
			"bytes", bytes,
			"duration", d,
		)
	}
}

// LogRetry logs the end of an operation that ran out of memory at least once.
func (l *Logger) LogRetry(ctx context.Context, id chunk.ID, attempts, evicted int, err error) {
	l = l.WithChunk(id)
	if err != nil {
		l.ErrorContext(ctx, "out of memory",
			"attempts", attempts,
			"evicted", evicted,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "recovered from out of memory",
			"attempts", attempts,
			"evicted", evicted,
		)
	}
}

// LogReencode logs a chunk changing its encoding.
func (l *Logger) LogReencode(ctx context.Context, id chunk.ID, from, to Encoding, err error) {
	l = l.WithChunk(id)
	if err != nil {
		l.ErrorContext(ctx, "reencode failed",
			"from", from.String(),
			"to", to.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "reencode completed",
			"from", from.String(),
			"to", to.String(),
		)
	}
}

// LogFlush logs a flush of stale chunks.
func (l *Logger) LogFlush(ctx context.Context, written int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"written", written,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"written", written,
		)
	}
}
