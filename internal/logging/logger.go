// Package logging provides subsystem-scoped zerolog loggers for roster.
package logging

import (
	"io"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Console styles accepted by NewConsole.
const (
	StylePretty  = "pretty"
	StyleCompact = "compact"
	StyleJSON    = "json"
)

// Logger wraps zerolog to provide subsystem-scoped child loggers.
type Logger struct {
	zl zerolog.Logger
}

// New creates a root logger writing to the given writer at the specified level.
// If w is nil, defaults to pretty console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter(os.Stderr, StylePretty)
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(level))
	return &Logger{zl: zl}
}

// NewConsole creates a root logger on stderr using one of the console styles.
// Unknown styles fall back to pretty output.
func NewConsole(style, level string) *Logger {
	return New(consoleWriter(os.Stderr, style), level)
}

// NewWithFile logs to the stderr console at consoleLevel and, as JSON lines,
// to file at fileLevel.
func NewWithFile(style, consoleLevel string, file io.Writer, fileLevel string) *Logger {
	cl, fl := parseLevel(consoleLevel), parseLevel(fileLevel)
	w := zerolog.MultiLevelWriter(
		atLevel(consoleWriter(os.Stderr, style), cl),
		atLevel(file, fl),
	)
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger().Level(min(cl, fl))}
}

func atLevel(w io.Writer, lvl zerolog.Level) zerolog.LevelWriter {
	return &zerolog.FilteredLevelWriter{Writer: zerolog.LevelWriterAdapter{Writer: w}, Level: lvl}
}

func consoleWriter(out io.Writer, style string) io.Writer {
	switch style {
	case StyleJSON:
		return out
	case StyleCompact:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: true}
	default:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return &Logger{zl: l.zl.With().Str("subsystem", subsystem).Logger()}
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// ValidLevels lists the level names understood by New.
var ValidLevels = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}

// parseLevel maps a level name to zerolog. "silent" disables logging and
// anything unrecognized means info.
func parseLevel(s string) zerolog.Level {
	if s == "silent" {
		return zerolog.Disabled
	}
	if !slices.Contains(ValidLevels, s) {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
