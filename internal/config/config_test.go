package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "upi_diagnosis", cfg.Mongo.Database)
	assert.Equal(t, "transactions", cfg.Mongo.Collection)
	assert.Equal(t, 5*time.Second, cfg.Mongo.ServerSelectionTimeout)
	assert.EqualValues(t, 50, cfg.Mongo.MaxPoolSize)
	assert.EqualValues(t, 5, cfg.Mongo.MinPoolSize)
	assert.Equal(t, "llama3-8b-8192", cfg.LLM.Model)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, 5*time.Second, cfg.Voice.PollInterval)
	assert.Equal(t, 60, cfg.Voice.PollAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Voice.AudioMaxAge)
	assert.Equal(t, 100.0, cfg.Dataset.ReplayMultiplier)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MONGODB_OPERATION_TIMEOUT", "3s")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Mongo.OperationTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_InvalidValues(t *testing.T) {
	chdirTemp(t)

	t.Run("duration", func(t *testing.T) {
		t.Setenv("SERVER_READ_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SERVER_READ_TIMEOUT")
	})

	t.Run("port", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "70000")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("UPIDIAG_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("UPIDIAG_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("UPIDIAG_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
