package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger provides structured logging with levels, tagging every line with
// the component that emitted it.
type Logger struct {
	MinLevel LogLevel
	mu       sync.Mutex
	handler  *slog.Logger
}

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing text records to w.
func New(w io.Writer, level LogLevel) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{MinLevel: level, handler: slog.New(h)}
}

// Default logs to stderr at the given level name.
func Default(level string) *Logger {
	return New(os.Stderr, ParseLevel(level))
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// ParseLevel maps debug/info/warn/error to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Slog exposes the underlying slog logger for libraries that want one.
func (l *Logger) Slog() *slog.Logger {
	return l.handler
}
