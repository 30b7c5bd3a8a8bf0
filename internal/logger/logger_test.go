package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/gamemaster/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestBuild_File(t *testing.T) {
	dir := t.TempDir()
	l, err := Build(&config.LogConfig{
		Level:  "warn",
		Format: "json",
		Output: "file",
		File:   config.LogFileConfig{Path: dir, Filename: "app.log", MaxSize: 1},
	})
	require.NoError(t, err)

	l.Warn("ledger_write_failed")
	l.Error("ledger_write_failed")
	_ = l.Sync()

	for _, name := range []string{"app.log", "error.log"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}
	assert.Equal(t, zapcore.WarnLevel, Level())
}

func TestBuild_InvalidOutput(t *testing.T) {
	_, err := Build(&config.LogConfig{Level: "info", Output: "syslog"})
	assert.Error(t, err)
}

func TestParseLevelAndSetLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("unknown"))

	SetLevel("error")
	assert.Equal(t, zapcore.ErrorLevel, Level())
	SetLevel("info")
	assert.Equal(t, zapcore.InfoLevel, Level())
}

func TestModuleLogger(t *testing.T) {
	loggers := buildModuleLoggers(&config.LogConfig{Modules: map[string]string{"ledger": "debug"}})
	require.Contains(t, loggers, "ledger")
	assert.True(t, loggers["ledger"].Core().Enabled(zapcore.DebugLevel))

	// 未配置的模块退回全局日志器
	assert.NotNil(t, WithModule("engine"))
	LogLedgerWrite("assignLevel", "0xabc", 0, nil)
}
