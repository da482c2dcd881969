// Package logging provides structured logging using Go's slog package.
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

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// ConnIDKey is the context key for connection IDs.
	ConnIDKey ContextKey = "conn_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (JSON format, Info level)
	InitLogger(LevelInfo, FormatJSON)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel maps a level name (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// ParseFormat maps a format name (json, text) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	}
	return FormatJSON, fmt.Errorf("unknown log format: %s", s)
}

// InitLogger initializes the global logger with the specified level and
// format, writing to stderr so command output on stdout stays clean.
func InitLogger(level Level, format Format) {
	InitLoggerTo(os.Stderr, level, format)
}

// InitLoggerTo initializes the global logger writing to w.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithConnID adds a connection ID to the context.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, ConnIDKey, connID)
}

// GetConnID retrieves the connection ID from the context.
func GetConnID(ctx context.Context) string {
	if connID, ok := ctx.Value(ConnIDKey).(string); ok {
		return connID
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if connID := GetConnID(ctx); connID != "" {
		logger = logger.With("conn_id", connID)
	}
	return logger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// ConnectionOpened logs a new engine connection.
func ConnectionOpened(ctx context.Context, path, driver string, args ...any) {
	allArgs := []any{
		"path", path,
		"driver", driver,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("connection_opened", allArgs...)
}

// SchemaAttached logs a successful attach.
func SchemaAttached(ctx context.Context, schema, path string, args ...any) {
	allArgs := []any{
		"schema", schema,
		"path", path,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("schema_attached", allArgs...)
}

// SchemaDetached logs a successful detach.
func SchemaDetached(ctx context.Context, schema string, args ...any) {
	allArgs := []any{
		"schema", schema,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("schema_detached", allArgs...)
}

// Statement logs a statement handed to the engine.
func Statement(ctx context.Context, stmt string, duration time.Duration, err error, args ...any) {
	allArgs := []any{
		"sql", stmt,
		"duration_ms", duration.Milliseconds(),
	}
	if err != nil {
		allArgs = append(allArgs, "error", err.Error())
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("statement", allArgs...)
}

// Resolved logs the outcome of a name resolution.
func Resolved(ctx context.Context, kind, name, schema string, explicit bool, args ...any) {
	allArgs := []any{
		"kind", kind,
		"name", name,
		"schema", schema,
		"explicit", explicit,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("resolved", allArgs...)
}
