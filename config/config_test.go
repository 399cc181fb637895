package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zylisp/bridge/protocol"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, ".nrepl-port", cfg.PortFile)
	assert.Equal(t, "auto", cfg.Dialect)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.Zero(t, cfg.CloseTimeout)
	assert.Equal(t, 100, cfg.EvalLog.MaxLines)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, protocol.Dialect(""), cfg.DialectValue())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
host: repl.local
port: "7888"
dialect: prepl
probe_timeout: 2s
close_timeout: 1500ms
eval_log:
  path: /tmp/eval.clj
  max_lines: 40
log:
  level: warn
  file: /tmp/zybridge.log
  dated: true
`)

	t.Setenv(EnvHost, "")
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "repl.local", cfg.Host)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, protocol.DialectPREPL, cfg.DialectValue())
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.CloseTimeout)
	assert.Equal(t, EvalLogConfig{Path: "/tmp/eval.clj", MaxLines: 40}, cfg.EvalLog)
	assert.Equal(t, &LogConfig{Level: "debug", File: "/tmp/zybridge.log", Dated: true}, cfg.Log)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"dialect":   "dialect: socket\n",
		"log level": "log:\n  level: loud\n",
		"max lines": "eval_log:\n  max_lines: -1\n",
		"yaml":      "host: [unclosed\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Port = " 7888 "
	addr, err := cfg.Addr()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7888", addr)

	cfg.Host = "::1"
	addr, err = cfg.Addr()
	require.NoError(t, err)
	assert.Equal(t, "[::1]:7888", addr)
}

func TestAddrFromPortFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.PortFile = writeFile(t, dir, ".nrepl-port", "51234\n")

	addr, err := cfg.Addr()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:51234", addr)

	cfg.PortFile = filepath.Join(dir, "absent")
	_, err = cfg.Addr()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read port file")

	cfg.PortFile = writeFile(t, dir, "empty", "  \n")
	_, err = cfg.Addr()
	require.Error(t, err)

	cfg.PortFile = ""
	_, err = cfg.Addr()
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestCreateLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := (&LogConfig{Level: "warn"}).CreateLogger(&buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", "dialect", "nrepl")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "dialect=nrepl")
}

func TestCreateLoggerDatedFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &LogConfig{Level: "debug", File: filepath.Join(dir, "logs", "zybridge.log"), Dated: true}

	var console bytes.Buffer
	logger, closeFn, err := cfg.CreateLogger(&console)
	require.NoError(t, err)

	logger.Debug("to both")
	require.NoError(t, closeFn())

	matches, err := filepath.Glob(filepath.Join(dir, "logs", "zybridge.log.*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, strings.HasSuffix(matches[0], time.Now().Format("2006-01-02")))

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, console.String(), "to both")
}

func TestCreateLoggerNilConfig(t *testing.T) {
	var cfg *LogConfig
	logger, _, err := cfg.CreateLogger(&bytes.Buffer{})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
