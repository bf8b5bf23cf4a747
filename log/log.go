// Package log configures zerolog for the module and hands out component loggers.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Logger wraps zerolog.Logger with additional context.
type Logger struct {
	zerolog.Logger
}

// New creates a new logger instance writing to stdout.
func New(level string, pretty bool) Logger {
	return NewWithWriter(level, pretty, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Tests pass a buffer here.
func NewWithWriter(level string, pretty bool, w io.Writer) Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logLevel := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "trace":
		logLevel = zerolog.TraceLevel
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	case "fatal":
		logLevel = zerolog.FatalLevel
	case "panic":
		logLevel = zerolog.PanicLevel
	}

	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05.000",
		}
	}

	zlog := zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Logger()

	return Logger{zlog}
}

// Nop returns a logger that discards everything. Default for library users
// that do not pass their own.
func Nop() Logger {
	return Logger{zerolog.Nop()}
}

// With creates a child logger with additional context.
func (l Logger) With() zerolog.Context {
	return l.Logger.With()
}

// Component creates a logger for a specific component.
func (l Logger) Component(name string) Logger {
	return Logger{l.With().Str("component", name).Logger()}
}
