// Package logging builds Hermes's structured zerolog logger from the
// resolved config.Config.
package logging

import (
	"io"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger configured per level/format. format "console"
// yields human-readable output for local development; anything else
// (including the default "json") yields structured JSON for log aggregation.
func New(level, format string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zerolog.SetGlobalLevel(parseLevel(level))

	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", "hermesd").
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// RecoverPanic logs a recovered panic with a stack trace and returns without
// re-panicking, so a goroutine bug cannot take down the whole reactor.
func RecoverPanic(logger zerolog.Logger, goroutine string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", goroutine).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("recovered panic")
	}
}
