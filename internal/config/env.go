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
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} / ${VAR:default} references in input
// with the corresponding environment variable, or the default if unset.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, def := sub[1], sub[2]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}

// SubstituteEnvVarsInConfig rewrites every string field on cfg that
// contains a ${VAR} reference.
func SubstituteEnvVarsInConfig(cfg *Config) {
	cfg.Environment = SubstituteEnvVars(cfg.Environment)
	cfg.Node.ListenAddress = SubstituteEnvVars(cfg.Node.ListenAddress)
	cfg.Node.IdentityPath = SubstituteEnvVars(cfg.Node.IdentityPath)
	cfg.Store.DataDir = SubstituteEnvVars(cfg.Store.DataDir)
	cfg.Store.PeerCachePath = SubstituteEnvVars(cfg.Store.PeerCachePath)
	cfg.API.BindAddr = SubstituteEnvVars(cfg.API.BindAddr)
	cfg.API.TokenPath = SubstituteEnvVars(cfg.API.TokenPath)
	cfg.API.UnixSocket = SubstituteEnvVars(cfg.API.UnixSocket)
	cfg.Metrics.BindAddr = SubstituteEnvVars(cfg.Metrics.BindAddr)
	cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
	cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
}

// LoadDotEnv loads a .env file (if present) into the process environment
// before config is read, so ${VAR} substitution and direct overrides can
// see it. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// GetEnvironment reports the deployment environment, read from
// ELYSIUM_ENV (falling back to ENVIRONMENT, then "development").
func GetEnvironment() string {
	if env := os.Getenv("ELYSIUM_ENV"); env != "" {
		return strings.ToLower(env)
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return strings.ToLower(env)
	}
	return "development"
}

// IsProduction reports whether GetEnvironment is "production" or "prod".
func IsProduction() bool {
	env := GetEnvironment()
	return env == "production" || env == "prod"
}

// IsDevelopment reports whether GetEnvironment is "development" or "dev".
func IsDevelopment() bool {
	env := GetEnvironment()
	return env == "development" || env == "dev"
}
