// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Level names recognized by configuration.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Format names recognized by configuration.
const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Config controls logger construction.
type Config struct {
	Level     string
	Format    string
	Service   string
	Component string
}

// New builds a zerolog.Logger configured for structured, Loki-compatible
// output, with a pretty console mode for local development.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level := zerolog.InfoLevel
	switch cfg.Level {
	case LevelDebug:
		level = zerolog.DebugLevel
	case LevelWarn:
		level = zerolog.WarnLevel
	case LevelError:
		level = zerolog.ErrorLevel
	}

	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	service := cfg.Service
	if service == "" {
		service = "fleet-ingest"
	}

	logger := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("service", service).
		Str("component", cfg.Component).
		Logger()

	return logger
}

// LogPanic logs a recovered panic with a full stack trace. Use in a
// deferred recover() at the top of every long-lived goroutine.
func LogPanic(logger zerolog.Logger, panicValue any, msg string, fields map[string]any) {
	event := logger.Error().
		Interface("panic", panicValue).
		Str("stack", string(debug.Stack()))
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
