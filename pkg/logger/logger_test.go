package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesToLogDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitLogger(LogOption{Format: FormatJSON, LogDir: dir, Level: "debug"}))
	t.Cleanup(func() { _ = InitLogger(LogOption{}) })

	Debugf("[test] derived %d keys", 3)
	Logger().Info("[test] structured")
	_ = Sync()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"[test] derived 3 keys"`)
	assert.Contains(t, string(data), `"level":"debug"`)
	assert.Contains(t, string(data), `"msg":"[test] structured"`)
	assert.Contains(t, string(data), "logger_test.go")
}

func TestInitLogger_LevelFilter(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(LogOption{LogDir: dir, Level: "warn"})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNewLogger_ReportsDirectCaller(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(LogOption{Format: FormatJSON, LogDir: dir})
	require.NoError(t, err)

	l.Info("direct")
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"caller":"logger/logger_test.go:`)
}

func TestInitLogger_HelpersReportCaller(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitLogger(LogOption{Format: FormatJSON, LogDir: dir}))
	t.Cleanup(func() { _ = InitLogger(LogOption{}) })

	Infof("[test] via helper")
	_ = Sync()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"caller":"logger/logger_test.go:`)
	assert.NotContains(t, string(data), `"caller":"logger/logger.go:`)
}

func TestInitLogger_InvalidOption(t *testing.T) {
	assert.Error(t, InitLogger(LogOption{Level: "loud"}))
	assert.Error(t, InitLogger(LogOption{Format: "xml"}))

	// 失败时保留原有 logger
	assert.NotNil(t, Logger())
}
