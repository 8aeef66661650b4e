// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Source file:line info with shortened relative paths
// - Request-scoped user and session attributes carried on the context
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ContextKey is the type for logging values stored on a context.
type ContextKey string

const (
	// SessionIDKey carries the billing session being worked on.
	SessionIDKey ContextKey = "log_session_id"
	// UserIDKey carries the authenticated party.
	UserIDKey ContextKey = "log_user_id"
)

// Options controls logger construction. Zero values fall back to the
// environment.
type Options struct {
	Format string    // "text" or "json"; default LOG_FORMAT, then TTY detection
	Level  string    // default LOG_LEVEL, then info
	Writer io.Writer // default os.Stdout
	// Attrs are attached to every record, e.g. service and version.
	Attrs []any
}

// New creates a new configured logger from the environment.
func New() *slog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a logger. Format is determined by:
// 1. opts.Format, then the LOG_FORMAT env var (text/json)
// 2. TTY detection (text for TTY, JSON otherwise)
func NewWithOptions(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	format := opts.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	useText := format == "text"
	if format == "" {
		f, ok := w.(*os.File)
		useText = ok && isatty(f)
	}

	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	// Get working directory for relative path calculation
	wd, _ := os.Getwd()

	handlerOpts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					if rel, err := filepath.Rel(wd, src.File); err == nil {
						src.File = rel
					} else {
						src.File = filepath.Base(src.File)
					}
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if useText {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	if len(opts.Attrs) > 0 {
		logger = logger.With(opts.Attrs...)
	}
	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault creates a new logger and sets it as the default slog logger.
// Returns the created logger for additional use.
func SetDefault(attrs ...any) *slog.Logger {
	logger := NewWithOptions(Options{Attrs: attrs})
	slog.SetDefault(logger)
	return logger
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// ========================================
// Context helpers
// ========================================

// WithSessionID returns a context carrying the session ID for logging.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithUserID returns a context carrying the user ID for logging.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetSessionID returns the session ID on ctx, or "".
func GetSessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// GetUserID returns the user ID on ctx, or "".
func GetUserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// FromContext returns base with the context's user and session attributes
// attached. A nil base uses slog.Default().
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	var attrs []any
	if id := GetUserID(ctx); id != "" {
		attrs = append(attrs, "user_id", id)
	}
	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, "session_id", id)
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}
