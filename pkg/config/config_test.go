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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "openai/gpt-5-nano", cfg.Model.Name)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Model.BaseURL)
	assert.Equal(t, 8, cfg.MaxToolRounds)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
data_dir: /var/lib/rentagent
max_tool_rounds: 4
cache_ttl_seconds: 60
model:
  name: openai/gpt-4o-mini
  base_url: https://example.com/v1
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 4, cfg.MaxToolRounds)
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, "https://example.com/v1", cfg.Model.BaseURL)
	assert.Equal(t, filepath.Join("/var/lib/rentagent", "conversations.db"), cfg.ConversationDBPath())
	assert.Equal(t, filepath.Join("/var/lib/rentagent", "toolcache.db"), cfg.CacheDBPath())
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  api_key: from-file
scansan:
  api_key: from-file
`), 0o600))

	t.Setenv("OPENROUTER_API_KEY", "from-env")
	t.Setenv("SCANSAN_API_KEY", "scansan-env")
	t.Setenv("RENTAGENT_LISTEN", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Model.APIKey)
	assert.Equal(t, "scansan-env", cfg.ScanSan.APIKey)
	assert.Equal(t, ":7070", cfg.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
