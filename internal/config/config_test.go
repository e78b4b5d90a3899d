package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/config"
)

func TestLoadConfig_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("ENGRAM_HOST")
	cfg, err := config.LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
}

func TestLoadConfig_CanOverrideHost(t *testing.T) {
	t.Setenv("ENGRAM_HOST", "0.0.0.0")
	cfg, err := config.LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.CallInterval)
	assert.Equal(t, 6*time.Hour, cfg.Engine.MaintenanceInterval)
	assert.False(t, cfg.Watcher.Enabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENGRAM_PORT", "9999")
	t.Setenv("ENGRAM_LLM_CALL_INTERVAL", "250ms")
	t.Setenv("ENGRAM_WATCH_INBOX", "true")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.CallInterval)
	assert.True(t, cfg.Watcher.Enabled)
}

func TestLoadConfig_UnparseableEnvFallsBack(t *testing.T) {
	t.Setenv("ENGRAM_PORT", "not-a-number")
	t.Setenv("ENGRAM_LLM_CALL_TIMEOUT", "soon")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.LLM.CallTimeout)
}

func TestLoadConfigFromFile_LayersBetweenDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
llm:
  provider: openai
`), 0o644))

	// Env beats file.
	t.Setenv("ENGRAM_LLM_PROVIDER", "ollama")

	cfg, err := config.LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	// Untouched keys keep their defaults.
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
}

func TestLoadConfigFromFile_MissingFileErrors(t *testing.T) {
	_, err := config.LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_RejectsUnknownStorageEngine(t *testing.T) {
	t.Setenv("ENGRAM_STORAGE_ENGINE", "flatfile")
	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("ENGRAM_STORAGE_ENGINE", "postgres")
	_ = os.Unsetenv("ENGRAM_POSTGRES_DSN")
	_, err := config.LoadConfig()
	assert.Error(t, err)

	t.Setenv("ENGRAM_POSTGRES_DSN", "postgres://localhost/engram")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
}
