package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/config"
)

func TestNewWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New(config.LogConfig{Level: "info", Format: "json", Dir: dir})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("visible")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, filename(time.Now())))
	require.NoError(t, err)
	assert.Contains(t, string(data), "visible")
	assert.NotContains(t, string(data), "hidden")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "chatty", Format: "console"})
	require.Error(t, err)
}
