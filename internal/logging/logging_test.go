package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_NoneDiscardsOutput(t *testing.T) {
	logger, f, err := Configure("none", "", slog.HandlerOptions{})
	require.NoError(t, err)
	assert.Nil(t, f)
	require.NotNil(t, logger)
}

func TestConfigure_RejectsUnknownLevel(t *testing.T) {
	_, _, err := Configure("verbose", "", slog.HandlerOptions{})
	assert.Error(t, err)
}

func TestConfigure_FileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	logger, f, err := Configure("debug", path, slog.HandlerOptions{})
	require.NoError(t, err)
	require.NotNil(t, f)
	defer f.Close()

	logger.Info("hello", "key", "value")
	f.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key":"value"`)
}
