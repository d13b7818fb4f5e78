package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FallsBackToDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(LoaderOptions{ConfigDir: tmpDir, Environment: "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "0.0.0.0:7646", cfg.Node.ListenAddress)
}

func TestLoad_PrefersEnvironmentFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "staging.yaml"), []byte(`
node:
  listen_address: "0.0.0.0:8001"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "default.yaml"), []byte(`
node:
  listen_address: "0.0.0.0:9001"
`), 0o644))

	cfg, err := Load(LoaderOptions{ConfigDir: tmpDir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8001", cfg.Node.ListenAddress)
}

func TestLoad_EnvironmentOverrideWins(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "default.yaml"), []byte(`
node:
  listen_address: "0.0.0.0:9001"
`), 0o644))

	os.Setenv("ELYSIUM_LISTEN_ADDRESS", "0.0.0.0:9999")
	defer os.Unsetenv("ELYSIUM_LISTEN_ADDRESS")

	cfg, err := Load(LoaderOptions{ConfigDir: tmpDir, Environment: "nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Node.ListenAddress)
}

func TestLoad_ValidationFailureSurfaces(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.yaml"), []byte(`
node:
  listen_address: "not-a-valid-address"
`), 0o644))

	_, err := Load(LoaderOptions{ConfigDir: tmpDir, Environment: "bad"})
	assert.Error(t, err)
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.yaml"), []byte(`
node:
  listen_address: "not-a-valid-address"
`), 0o644))

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: tmpDir, Environment: "bad"})
	})
}
