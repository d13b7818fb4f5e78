package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "node.yaml")

	content := `
node:
  listen_address: "0.0.0.0:9000"
  identity_path: "/var/lib/elysium/identity.key"
store:
  data_dir: "/var/lib/elysium/data"
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Node.ListenAddress)
	assert.Equal(t, "/var/lib/elysium/identity.key", cfg.Node.IdentityPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// defaults filled in for everything untouched
	assert.Equal(t, int64(10), cfg.Dial.MaxConcurrent)
	assert.Equal(t, 3, cfg.Scorer.TopK)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "roundtrip.yaml")

	cfg := &Config{}
	setDefaults(cfg)
	cfg.Node.ListenAddress = "127.0.0.1:7000"

	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", reloaded.Node.ListenAddress)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:7646", cfg.Node.ListenAddress)
	assert.Equal(t, "127.0.0.1:7647", cfg.API.BindAddr)
	assert.Equal(t, "127.0.0.1:7648", cfg.Metrics.BindAddr)
	assert.Equal(t, 60*cfg.Dial.BackoffBase, cfg.Dial.BackoffCap)
}
