// Package logging provides the structured logging used throughout
// VGitArchive: a package-level *slog.Logger writing JSON, an
// environment variable overriding the level, and context-carried
// identifiers threaded automatically into every log line.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelEnvVar controls the log level when set; unset or invalid values
// fall back to INFO.
const LevelEnvVar = "VGA_LOG_LEVEL"

type ctxKey int

const (
	archiveKey ctxKey = iota
	sessionKey
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

func init() {
	logger = createLogger(os.Stderr, ParseLevel(os.Getenv(LevelEnvVar)))
}

// SetOutput redirects the package logger to w at the given level.
// Exposed for the cmd/vga CLI wrapper and for tests that want to assert
// on log output; ordinary library use never needs it.
func SetOutput(w interface{ Write([]byte) (int, error) }, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = createLogger(w, level)
}

// SetLevel replaces the package logger with one at level writing to
// os.Stderr; a writer set earlier through SetOutput is not kept.
func SetLevel(level slog.Level) {
	SetOutput(os.Stderr, level)
}

func createLogger(w interface{ Write([]byte) (int, error) }, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name (case-insensitive: debug, info, warn,
// warning, error) to its slog.Level, defaulting to INFO for anything
// else.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithArchive returns a context carrying the archive path for log
// attribution.
func WithArchive(ctx context.Context, archive string) context.Context {
	return context.WithValue(ctx, archiveKey, archive)
}

// WithSessionID returns a context carrying an opaque session identifier
// for log attribution (e.g. a CLI invocation id).
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

func attrsFromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var attrs []any
	if v, ok := ctx.Value(archiveKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("archive", v))
	}
	if v, ok := ctx.Value(sessionKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("session_id", v))
	}
	return attrs
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	all := append(attrsFromContext(ctx), attrs...)
	get().Log(ctx, level, msg, all...)
}

// Debug logs at DEBUG level with context values automatically attached.
func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }

// Info logs at INFO level with context values automatically attached.
func Info(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelInfo, msg, attrs...) }

// Warn logs at WARN level with context values automatically attached.
func Warn(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelWarn, msg, attrs...) }

// Error logs at ERROR level with context values automatically attached.
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }
