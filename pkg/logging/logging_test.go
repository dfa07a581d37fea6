package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"), "unknown levels default to info")
}

func TestSetupLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "caelus.log")
	logger, closer, err := Setup(Config{Level: "debug", LogFile: logFile, LogToFile: true})
	require.NoError(t, err)

	logger.Debug("solver started", "case", "cavity")
	require.NoError(t, closer())

	body, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(body), "solver started")
	assert.Contains(t, string(body), "cavity")
}

func TestSetupBadLogFile(t *testing.T) {
	_, _, err := Setup(Config{
		LogFile:   filepath.Join(t.TempDir(), "missing", "caelus.log"),
		LogToFile: true,
	})
	require.Error(t, err)
}
