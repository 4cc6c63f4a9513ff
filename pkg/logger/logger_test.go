package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dcn-collector/pkg/config"
)

// mockFatalHook 捕获 fatal 日志（不退出进程）
type mockFatalHook struct {
	called bool
}

func (h *mockFatalHook) Hook(e zapcore.Entry) error {
	if e.Level == zapcore.FatalLevel {
		h.called = true
	}
	return nil
}

func testConfig(t *testing.T, format string) config.ZapLogConfig {
	t.Helper()
	cfg := config.NewDefaultConfig().Log
	cfg.Level = "debug"
	cfg.Format = format
	cfg.Path = filepath.Join(t.TempDir(), "logs")
	return cfg
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("err"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestNewWritesJSONToStdoutAndFile(t *testing.T) {
	cfg := testConfig(t, "json")
	var buf bytes.Buffer

	l, err := newWithStdout(cfg, &buf)
	require.NoError(t, err)

	l.Info("cycle complete", zap.Int("batch", 3))
	_ = l.Sync()

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "cycle complete", entry["msg"])
	assert.EqualValues(t, 3, entry["batch"])
	assert.Contains(t, entry, "timestamp")

	files, err := os.ReadDir(cfg.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

func TestNewRespectsLevel(t *testing.T) {
	cfg := testConfig(t, "console")
	cfg.Level = "warn"
	var buf bytes.Buffer

	l, err := newWithStdout(cfg, &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFatalHook(t *testing.T) {
	cfg := testConfig(t, "json")
	var buf bytes.Buffer
	l, err := newWithStdout(cfg, &buf)
	require.NoError(t, err)

	// Fatal 测试（使用 zap.Hooks + WithFatalHook，不触发 os.Exit）
	hook := &mockFatalHook{}
	l = l.WithOptions(zap.Hooks(hook.Hook), zap.WithFatalHook(zapcore.WriteThenPanic))
	assert.Panics(t, func() { l.Fatal("fatal msg") })
	assert.True(t, hook.called)
}

func TestInitReplacesGlobal(t *testing.T) {
	cfg := testConfig(t, "json")
	l, err := Init(cfg)
	require.NoError(t, err)
	assert.Same(t, l, L())
}
