// Package logging wires up the broker's structured logger. It generalizes
// the teacher's bracketed log.Printf convention ("[connector] ...",
// "[executor] ...") into zerolog's leveled, structured output, keeping
// the bracket tag as a "component" field so log lines stay greppable in
// the same way.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Init configures the global zerolog logger. When pretty is true it uses
// zerolog's console writer (local development); otherwise it emits plain
// JSON lines suitable for container log collection.
func Init(pretty bool, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(lvl)
	zerolog.DefaultContextLogger = &logger
	return logger
}

// Component returns a child logger tagged with component, mirroring the
// teacher's "[component] message" prefix as a structured field instead of
// a string prefix.
func Component(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
