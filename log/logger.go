package log

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"time"
)

// Levels below slog.LevelDebug and above slog.LevelError.
const (
	levelMaxVerbosity slog.Level = math.MinInt
	LevelTrace        slog.Level = -8
	LevelDebug                   = slog.LevelDebug
	LevelInfo                    = slog.LevelInfo
	LevelWarn                    = slog.LevelWarn
	LevelError                   = slog.LevelError
	LevelCrit         slog.Level = 12
)

var levelNames = map[slog.Level]string{
	LevelTrace: "trace",
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelCrit:  "crit",
}

// LevelString returns the lower case name of l.
func LevelString(l slog.Level) string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "unknown"
}

// levelLabel is the fixed-width upper case label used by TerminalHandler.
func levelLabel(l slog.Level) string {
	s, ok := levelNames[l]
	if !ok {
		return "?????"
	}
	b := []byte("     ")
	for i := 0; i < len(s) && i < len(b); i++ {
		b[i] = s[i] - 'a' + 'A'
	}
	return string(b)
}

// Logger writes module-tagged key/value records to a slog.Handler.
type Logger interface {
	With(ctx ...any) Logger
	Write(level slog.Level, module string, msg string, attrs ...any)
	Enabled(ctx context.Context, level slog.Level) bool

	Trace(module string, msg string, ctx ...any)
	Debug(module string, msg string, ctx ...any)
	Info(module string, msg string, ctx ...any)
	Warn(module string, msg string, ctx ...any)
	Error(module string, msg string, ctx ...any)
}

type logger struct {
	inner *slog.Logger
}

// NewLogger returns a Logger backed by h.
func NewLogger(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}

// Write emits one record tagged with module. The caller frame is recorded
// two levels above Write so package-level helpers report their caller.
func (l *logger) Write(level slog.Level, module string, msg string, attrs ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	if module != "" {
		r.AddAttrs(slog.String("module", module))
	}
	r.Add(attrs...)
	_ = l.inner.Handler().Handle(context.Background(), r)
}

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}

func (l *logger) Trace(module string, msg string, ctx ...any) {
	l.Write(LevelTrace, module, msg, ctx...)
}
func (l *logger) Debug(module string, msg string, ctx ...any) {
	l.Write(LevelDebug, module, msg, ctx...)
}
func (l *logger) Info(module string, msg string, ctx ...any) { l.Write(LevelInfo, module, msg, ctx...) }
func (l *logger) Warn(module string, msg string, ctx ...any) { l.Write(LevelWarn, module, msg, ctx...) }
func (l *logger) Error(module string, msg string, ctx ...any) {
	l.Write(LevelError, module, msg, ctx...)
}
