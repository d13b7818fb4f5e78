package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("ELYSIUM_TEST_VAR", "resolved")
	defer os.Unsetenv("ELYSIUM_TEST_VAR")

	assert.Equal(t, "resolved", SubstituteEnvVars("${ELYSIUM_TEST_VAR}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${ELYSIUM_UNSET_VAR:fallback}"))
	assert.Equal(t, "prefix-resolved-suffix", SubstituteEnvVars("prefix-${ELYSIUM_TEST_VAR}-suffix"))
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	os.Setenv("ELYSIUM_TEST_DATADIR", "/mnt/elysium")
	defer os.Unsetenv("ELYSIUM_TEST_DATADIR")

	cfg := &Config{}
	setDefaults(cfg)
	cfg.Store.DataDir = "${ELYSIUM_TEST_DATADIR}"

	SubstituteEnvVarsInConfig(cfg)
	assert.Equal(t, "/mnt/elysium", cfg.Store.DataDir)
}

func TestGetEnvironment(t *testing.T) {
	os.Unsetenv("ELYSIUM_ENV")
	os.Unsetenv("ENVIRONMENT")
	assert.Equal(t, "development", GetEnvironment())

	os.Setenv("ELYSIUM_ENV", "Production")
	defer os.Unsetenv("ELYSIUM_ENV")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
	assert.False(t, IsDevelopment())
}
