package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can accept a logger without
// importing zerolog themselves.
type Logger = zerolog.Logger

// NewLogger builds the process logger. Development gets debug level and
// console output; anything else logs JSON at info. LOG_LEVEL overrides the
// level when it names a valid zerolog level.
func NewLogger(appEnv string) Logger {
	return newLogger(os.Stdout, appEnv, os.Getenv("LOG_LEVEL"))
}

func newLogger(out io.Writer, appEnv, levelOverride string) Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	if levelOverride != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(levelOverride)); err == nil {
			level = parsed
		}
	}

	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "webui").
		Logger()
}

// DiscardLogger returns a logger that drops everything. Components fall back
// to it when constructed without a logger.
func DiscardLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}
