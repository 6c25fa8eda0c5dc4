package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "ORCHESTRATOR_URL", "MANIFEST_ID", "IDENTITY_PROVIDER_URL", "ALLOWED_ORIGINS", "ORCHESTRATOR_TIMEOUT_MS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 8090, cfg.HTTPPort)
	assert.Equal(t, ":8090", cfg.Addr())
	assert.Equal(t, "http://localhost:8000", cfg.OrchestratorURL)
	assert.Equal(t, "orchestrator_v2", cfg.ManifestID)
	assert.Equal(t, "https://identity.ic0.app", cfg.IdentityProviderURL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Zero(t, cfg.OrchestratorTimeout)
	assert.Equal(t, time.Minute, cfg.AgentCacheTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("ORCHESTRATOR_URL", "http://orchestrator:8000")
	t.Setenv("ORCHESTRATOR_TIMEOUT_MS", "1500")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173, https://portal.example ,")
	t.Setenv("WS_MAX_MESSAGE_SIZE", "not-a-number")

	cfg := Load()

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "http://orchestrator:8000", cfg.OrchestratorURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.OrchestratorTimeout)
	assert.Equal(t, []string{"http://localhost:5173", "https://portal.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(65536), cfg.MaxMessageSize)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MANIFEST_ID=from_file\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("MANIFEST_ID", "")
	os.Unsetenv("MANIFEST_ID")
	t.Setenv("LOG_LEVEL", "warn")

	require.NoError(t, LoadEnvFile(path))
	cfg := Load()

	assert.Equal(t, "from_file", cfg.ManifestID)
	assert.Equal(t, "warn", cfg.LogLevel, "existing variables win over the file")
}

func TestLoadEnvFileMissing(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, LoadEnvFile(""))
}
