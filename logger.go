package meshdof

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with meshdof-specific helpers so log output
// uses consistent field names across operations.
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
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithLevelIndex adds a mesh level field to the logger.
func (l *Logger) WithLevelIndex(level int) *Logger {
	return &Logger{
		Logger: l.Logger.With("level", level),
	}
}

// LogDistribute logs a DoF distribution pass.
func (l *Logger) LogDistribute(ctx context.Context, levels int, totalDoFs uint64, duration time.Duration) {
	l.InfoContext(ctx, "DoF distribution completed",
		"levels", levels,
		"total_dofs", totalDoFs,
		"duration", duration,
	)
}

// LogCompress logs a compression pass across all levels.
func (l *Logger) LogCompress(ctx context.Context, slotsBefore, slotsAfter int, duration time.Duration) {
	l.DebugContext(ctx, "compression completed",
		"slots_before", slotsBefore,
		"slots_after", slotsAfter,
		"duration", duration,
	)
}

// LogUncompress logs a decompression pass across all levels.
func (l *Logger) LogUncompress(ctx context.Context, slots int, duration time.Duration) {
	l.DebugContext(ctx, "decompression completed",
		"slots", slots,
		"duration", duration,
	)
}
