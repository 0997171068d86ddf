package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("TRACE")
	require.NoError(t, err)
	assert.Equal(t, LevelTrace, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	var buf bytes.Buffer
	prev := Root()
	defer SetDefault(prev)
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace, false)))

	DisableModule(Loader)
	Debug(Loader, "hidden")
	assert.Empty(t, buf.String())

	EnableModules("loader, cli")
	defer DisableModule(Loader)
	defer DisableModule(CLI)
	Debug(Loader, "shown", "bytes", 32)
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "bytes=32")
	assert.Contains(t, buf.String(), "module=loader")

	buf.Reset()
	Info(Ncval, "always")
	assert.Contains(t, buf.String(), "always")
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(JSONHandler(&buf, LevelInfo))
	l.Info(CLI, "validated", "file", "a.nexe", "ok", true)
	l.Debug(CLI, "dropped")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "validated", rec["msg"])
	assert.Equal(t, "a.nexe", rec["file"])
	assert.Equal(t, "cli", rec["module"])
}

func TestInitLogger(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var buf bytes.Buffer
	require.NoError(t, InitLogger(&buf, "warn", "terminal"))
	Info(CLI, "quiet")
	Warn(CLI, "loud", "n", 1)
	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.True(t, strings.HasPrefix(out, "WARN ["), out)
	assert.Contains(t, out, "n=1")

	assert.Error(t, InitLogger(&buf, "loud", "terminal"))
	assert.Error(t, InitLogger(&buf, "info", "xml"))
}

func TestLevelNames(t *testing.T) {
	assert.Equal(t, "crit", LevelString(LevelCrit))
	assert.Equal(t, "unknown", LevelString(slog.Level(3)))
	assert.Equal(t, "INFO ", levelLabel(LevelInfo))
	assert.Equal(t, "TRACE", levelLabel(LevelTrace))
}
