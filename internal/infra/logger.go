package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger for the given environment. Development
// gets debug level and a console writer; "cli" writes human-readable output to
// stderr so command output on stdout stays clean.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	var out io.Writer = os.Stdout
	switch appEnv {
	case "development":
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	case "cli":
		level = zerolog.WarnLevel
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NopLogger returns a logger that discards everything. Used as the default for
// optional logger dependencies.
func NopLogger() *Logger {
	l := zerolog.Nop()
	return &l
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger
