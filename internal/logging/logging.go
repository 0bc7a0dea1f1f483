// Package logging provides the structured logger used across snaprotate.
//
// Call sites use a key-value style:
//
//	log.Error("retention: delete failed", "set", name, "id", id, "error", err)
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a logger that adds the given key-value pairs to every entry.
	With(args ...any) Logger
}

// Config selects level and output format ("json" or "console").
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// ZeroLogger implements Logger on top of zerolog. The level is shared
// with every child from With and can be changed at runtime.
type ZeroLogger struct {
	zl    zerolog.Logger
	level *atomic.Int32
}

// levelHook drops events below the shared level.
type levelHook struct {
	level *atomic.Int32
}

func (h levelHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if int32(level) < h.level.Load() {
		e.Discard()
	}
}

// New builds a zerolog-backed logger.
func New(cfg Config) *ZeroLogger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level := new(atomic.Int32)
	level.Store(int32(ParseLevel(cfg.Level)))
	zl := zerolog.New(out).Hook(levelHook{level: level}).With().Timestamp().Logger()
	return &ZeroLogger{zl: zl, level: level}
}

func (l *ZeroLogger) With(args ...any) Logger { return l.Child(args...) }

// Child is With for callers that need the concrete logger, for SetLevel
// or the slog adapter.
func (l *ZeroLogger) Child(args ...any) *ZeroLogger {
	return &ZeroLogger{zl: l.zl.With().Fields(args).Logger(), level: l.level}
}

// SetLevel changes the level of l and of every logger derived from it.
func (l *ZeroLogger) SetLevel(level string) {
	l.level.Store(int32(ParseLevel(level)))
}

func (l *ZeroLogger) enabled(level zerolog.Level) bool {
	return int32(level) >= l.level.Load()
}


func (l *ZeroLogger) Debug(msg string, args ...any) { l.zl.Debug().Fields(args).Msg(msg) }
func (l *ZeroLogger) Info(msg string, args ...any)  { l.zl.Info().Fields(args).Msg(msg) }
func (l *ZeroLogger) Warn(msg string, args ...any)  { l.zl.Warn().Fields(args).Msg(msg) }
func (l *ZeroLogger) Error(msg string, args ...any) { l.zl.Error().Fields(args).Msg(msg) }

// ParseLevel maps a level name to zerolog; unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }
