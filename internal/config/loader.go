// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config)
	ConfigDir string
	// Environment overrides automatic environment detection
	Environment string
	// DotEnvPath, if set, is loaded into the process environment before
	// the config file is read and before overrides are applied.
	DotEnvPath string
	// SkipEnvSubstitution disables ${VAR} substitution in string fields
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir:  "config",
		DotEnvPath: ".env",
	}
}

// Load loads configuration with automatic environment detection: it
// loads a .env file if present, tries "<dir>/<env>.yaml", falls back to
// "<dir>/default.yaml", then "<dir>/config.yaml", then an all-defaults
// Config if none exist.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.DotEnvPath != "" {
		if err := LoadDotEnv(options.DotEnvPath); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				cfg = &Config{Environment: env}
				setDefaults(cfg)
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		issues := Validate(cfg)
		for _, iss := range issues {
			if iss.Level == LevelError {
				return nil, fmt.Errorf("configuration validation failed: %s: %s", iss.Field, iss.Message)
			}
		}
	}

	return cfg, nil
}

// loadConfigFile loads a single config file, failing if it is absent.
func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides applies direct environment variable
// overrides, which take precedence over both the file and ${VAR}
// substitution.
func applyEnvironmentOverrides(cfg *Config) {
	if addr := os.Getenv("ELYSIUM_LISTEN_ADDRESS"); addr != "" {
		cfg.Node.ListenAddress = addr
	}
	if path := os.Getenv("ELYSIUM_IDENTITY_PATH"); path != "" {
		cfg.Node.IdentityPath = path
	}
	if dir := os.Getenv("ELYSIUM_DATA_DIR"); dir != "" {
		cfg.Store.DataDir = dir
	}
	if level := os.Getenv("ELYSIUM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv("ELYSIUM_API_BIND_ADDRESS"); addr != "" {
		cfg.API.BindAddr = addr
	}
	if addr := os.Getenv("ELYSIUM_METRICS_BIND_ADDRESS"); addr != "" {
		cfg.Metrics.BindAddr = addr
	}
	switch os.Getenv("ELYSIUM_METRICS_ENABLED") {
	case "true":
		cfg.Metrics.Enabled = true
	case "false":
		cfg.Metrics.Enabled = false
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{
		ConfigDir:   "config",
		Environment: environment,
		DotEnvPath:  ".env",
	})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
