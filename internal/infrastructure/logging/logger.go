// Package logging provides structured logging for the eviqo MQTT bridge.
//
// It wraps log/slog to give every component (session client, bridge,
// discovery publisher) a consistent, structured logger configured once
// at startup and treated as read-only thereafter.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures a Logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string

	// JSON selects JSON output; otherwise text output is used.
	JSON bool

	// Output selects the destination stream: "stdout" or "stderr".
	// Defaults to "stdout".
	Output string
}

// Logger wraps slog.Logger with bridge-specific defaults.
//
// Thread Safety: safe for concurrent use, like the underlying slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from Options.
func New(opts Options) *Logger {
	var output io.Writer
	switch strings.ToLower(opts.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "eviqo-mqtt-bridge"),
	})

	return &Logger{Logger: slog.New(handler)}
}

// Default returns a logger suitable for use before configuration loads.
func Default() *Logger {
	return New(Options{Level: "info", JSON: true, Output: "stdout"})
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// parseLevel converts a string log level to slog.Level, defaulting to Info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
