package logger

import (
	"context"
	"fmt"
	"os"
)

// SetLogLevel sets the minimum log level
func (l *Logger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MinLevel = level
}

func (l *Logger) log(level LogLevel, component, message string, args ...interface{}) {
	l.mu.Lock()
	min := l.MinLevel
	l.mu.Unlock()
	if level < min {
		return
	}

	formattedMsg := message
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(message, args...)
	}

	if component != "" {
		l.handler.Log(context.Background(), level.slogLevel(), formattedMsg, "component", component)
		return
	}
	l.handler.Log(context.Background(), level.slogLevel(), formattedMsg)
}

// Debug logs a debug message
func (l *Logger) Debug(component, message string, args ...interface{}) {
	l.log(LevelDebug, component, message, args...)
}

// Info logs an info message
func (l *Logger) Info(component, message string, args ...interface{}) {
	l.log(LevelInfo, component, message, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(component, message string, args ...interface{}) {
	l.log(LevelWarn, component, message, args...)
}

// Error logs an error message
func (l *Logger) Error(component, message string, args ...interface{}) {
	l.log(LevelError, component, message, args...)
}

// Fatal logs an error message and exits
func (l *Logger) Fatal(component, message string, args ...interface{}) {
	l.log(LevelError, component, message, args...)
	os.Exit(1)
}
