package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "dbpulse.log")

	log, err := New(&Config{File: file, Level: "debug"})
	require.NoError(t, err)

	log.Info("pool created")
	_ = log.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pool created")
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "verbose"})
	assert.Error(t, err)
}

func TestNewNilConfig(t *testing.T) {
	log, err := New(nil)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestSetDefaults(t *testing.T) {
	cfg := (&Config{}).SetDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.True(t, cfg.Console)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("unknown"))
}

func TestWithMinLevel(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	warn := WithMinLevel(base, "warn")
	assert.False(t, warn.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, warn.Core().Enabled(zapcore.WarnLevel))

	// cannot go below the parent's level
	infoOnly := base.WithOptions(zap.IncreaseLevel(zapcore.InfoLevel))
	assert.Same(t, infoOnly, WithMinLevel(infoOnly, "debug"))
}
