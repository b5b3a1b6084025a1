package logging

import (
	"log/slog"
	"os"
	"strings"
)

var logger *slog.Logger

// Init initializes the global structured logger. When json is true the
// handler emits one JSON object per line, which CloudWatch Logs ingests as
// structured fields when the handler runs inside Lambda.
func Init(level string, json bool) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	if logger == nil {
		Init("info", false)
	}
	return logger
}

// Err returns a standard attribute for logging an error value.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}
