package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Profile)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
api_url: https://tasks.example.com/api
profile: work
timeout: 5s
seal_tokens: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://tasks.example.com/api", cfg.APIURL)
	assert.Equal(t, "work", cfg.Profile)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.SealTokens)
	assert.Equal(t, Defaults().LogLevel, cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "profile: work\nrate_limit: 2\n")
	t.Setenv("TASKDESK_PROFILE", "home")
	t.Setenv("TASKDESK_RATE_LIMIT", "0.5")
	t.Setenv("TASKDESK_SEAL_TOKENS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "home", cfg.Profile)
	assert.InDelta(t, 0.5, cfg.RateLimit, 1e-9)
	assert.False(t, cfg.SealTokens)
}

func TestEnvInvalidValue(t *testing.T) {
	path := writeFile(t, "")
	t.Setenv("TASKDESK_TIMEOUT", "soon")

	_, err := Load(path)
	require.ErrorContains(t, err, "TASKDESK_TIMEOUT")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeFile(t, "profile: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Profile = "bad profile"
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.LogLevel = "verbose"
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.APIURL = ""
	require.Error(t, cfg.Validate())
}

func TestPaths(t *testing.T) {
	cfg := Config{DataDir: "/tmp/td"}
	assert.Equal(t, "/tmp/td/taskdesk.db", cfg.DatabasePath())
	assert.Equal(t, "/tmp/td/taskdesk.key", cfg.KeyPath())
}
