package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Modules whose trace and debug output is gated by EnableModules.
const (
	Ncval       = "ncval"       // validation driver callers and batch runs
	Loader      = "loader"      // code region loading
	CPUFeatures = "cpufeatures" // host detection and policy config
	CLI         = "cli"         // command line tool
)

var root atomic.Pointer[Logger]

func init() {
	SetDefault(NewLogger(DiscardHandler()))
}

// ParseLevel accepts the level names printed by LevelString, in any case,
// plus "warning", "critical" and "max".
func ParseLevel(lvl string) (slog.Level, error) {
	s := strings.ToLower(lvl)
	switch s {
	case "max", "maxverbosity":
		return levelMaxVerbosity, nil
	case "warning":
		return LevelWarn, nil
	case "critical":
		return LevelCrit, nil
	}
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("invalid level: %s", lvl)
}

// InitLogger installs a root logger writing to w. format is "terminal"
// (the default) or "json".
func InitLogger(w io.Writer, logLevel, format string) error {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	var h slog.Handler
	switch format {
	case "", "terminal":
		h = NewTerminalHandlerWithLevel(w, lvl, false)
	case "color":
		h = NewTerminalHandlerWithLevel(w, lvl, true)
	case "json":
		h = JSONHandler(w, lvl)
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	SetDefault(NewLogger(h))
	return nil
}

// SetDefault replaces the root logger and the slog default.
func SetDefault(l Logger) {
	root.Store(&l)
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

func Root() Logger {
	return *root.Load()
}

var (
	moduleMu      sync.RWMutex
	moduleEnabled = map[string]bool{
		Ncval:       false,
		Loader:      false,
		CPUFeatures: false,
		CLI:         false,
	}
)

func setModule(module string, on bool) {
	moduleMu.Lock()
	moduleEnabled[module] = on
	moduleMu.Unlock()
}

func EnableModule(module string)  { setModule(module, true) }
func DisableModule(module string) { setModule(module, false) }

// EnableModules enables a comma separated list of modules. "all" enables
// every known module.
func EnableModules(modules string) {
	for _, m := range strings.Split(modules, ",") {
		switch m = strings.TrimSpace(m); m {
		case "":
		case "all":
			moduleMu.Lock()
			for k := range moduleEnabled {
				moduleEnabled[k] = true
			}
			moduleMu.Unlock()
		default:
			EnableModule(m)
		}
	}
}

func moduleOn(module string) bool {
	moduleMu.RLock()
	defer moduleMu.RUnlock()
	return moduleEnabled[module]
}

// Trace and Debug are dropped unless module is enabled.
func Trace(module string, msg string, ctx ...any) {
	if moduleOn(module) {
		Root().Write(LevelTrace, module, msg, ctx...)
	}
}

func Debug(module string, msg string, ctx ...any) {
	if moduleOn(module) {
		Root().Write(LevelDebug, module, msg, ctx...)
	}
}

func Info(module string, msg string, ctx ...any)  { Root().Write(LevelInfo, module, msg, ctx...) }
func Warn(module string, msg string, ctx ...any)  { Root().Write(LevelWarn, module, msg, ctx...) }
func Error(module string, msg string, ctx ...any) { Root().Write(LevelError, module, msg, ctx...) }

// New returns the root logger with ctx attached.
func New(ctx ...any) Logger {
	return Root().With(ctx...)
}
