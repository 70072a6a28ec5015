package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core))

	l.Info("session", "Access checked", map[string]interface{}{"user_id": "user_1"})
	l.Error("analysis", "Analysis failed", map[string]interface{}{"error": errors.New("boom")})
	l.Warn("kv", "No details", nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0].ContextMap()
	assert.Equal(t, "session", first["module"])
	assert.Equal(t, map[string]interface{}{"user_id": "user_1"}, first["details"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])

	assert.Equal(t, map[string]interface{}{}, entries[2].ContextMap()["details"])
}

func TestNewZapLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leasecheck.log")
	l := NewZapLogger(path, true)
	l.Info("test", "hello", map[string]interface{}{"n": 1})
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"module":"test"`)
}
