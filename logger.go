package wormdb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with wormdb-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(table string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("table", table)),
	}
}

// LogOpen logs opening a database directory.
func (l *Logger) LogOpen(ctx context.Context, dir string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			slog.String("dir", dir),
			slog.Any("error", err),
		)
	} else {
		l.InfoContext(ctx, "database opened",
			slog.String("dir", dir),
		)
	}
}

// LogBackup logs a finished backup.
func (l *Logger) LogBackup(ctx context.Context, id string, files int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			slog.String("backup", id),
			slog.Any("error", err),
		)
	} else {
		l.InfoContext(ctx, "backup completed",
			slog.String("backup", id),
			slog.Int("files", files),
			slog.Int64("bytes", bytes),
		)
	}
}

// LogRestore logs a finished restore.
func (l *Logger) LogRestore(ctx context.Context, id, dir string, files int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			slog.String("backup", id),
			slog.String("dir", dir),
			slog.Any("error", err),
		)
	} else {
		l.InfoContext(ctx, "restore completed",
			slog.String("backup", id),
			slog.String("dir", dir),
			slog.Int("files", files),
		)
	}
}
