// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates the node's configuration: listen
// address, identity key path, on-disk state layout, dial policy, session
// timeouts, the scorer's top-K next-hop count, and the local management
// API and metrics binds.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full node configuration.
type Config struct {
	Environment string        `yaml:"environment" json:"environment"`
	Node        NodeConfig    `yaml:"node" json:"node"`
	Store       StoreConfig   `yaml:"store" json:"store"`
	Dial        DialConfig    `yaml:"dial" json:"dial"`
	Session     SessionConfig `yaml:"session" json:"session"`
	Scorer      ScorerConfig  `yaml:"scorer" json:"scorer"`
	API         APIConfig     `yaml:"api" json:"api"`
	Metrics     MetricsConfig `yaml:"metrics" json:"metrics"`
	Logging     LoggingConfig `yaml:"logging" json:"logging"`
}

// NodeConfig describes how this node identifies itself and listens.
type NodeConfig struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
	IdentityPath  string `yaml:"identity_path" json:"identity_path"`
}

// StoreConfig locates the node's durable state on disk.
type StoreConfig struct {
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	PeerCachePath string `yaml:"peer_cache_path" json:"peer_cache_path"`
}

// DialConfig controls outbound connection attempts and backoff.
type DialConfig struct {
	BackoffBase      time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffCap       time.Duration `yaml:"backoff_cap" json:"backoff_cap"`
	BackoffJitter    float64       `yaml:"backoff_jitter" json:"backoff_jitter"`
	MaxConcurrent    int64         `yaml:"max_concurrent_dials" json:"max_concurrent_dials"`
	CooldownDuration time.Duration `yaml:"cooldown_duration" json:"cooldown_duration"`
}

// SessionConfig controls handshake and liveness timeouts.
type SessionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval" json:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout" json:"ping_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// ScorerConfig controls the router's next-hop selection. The scoring
// weights themselves (spec.md section 4.4) are fixed constants in
// router.Score, not configuration: only the number of next hops a
// routing decision returns is tunable.
type ScorerConfig struct {
	TopK int `yaml:"top_k" json:"top_k"`
}

// APIConfig controls the local management API.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	BindAddr   string `yaml:"bind_address" json:"bind_address"`
	TokenPath  string `yaml:"token_path" json:"token_path"`
	AllowUnix  bool   `yaml:"allow_unix_socket" json:"allow_unix_socket"`
	UnixSocket string `yaml:"unix_socket_path" json:"unix_socket_path"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	BindAddr string `yaml:"bind_address" json:"bind_address"`
	Path     string `yaml:"path" json:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Output string `yaml:"output" json:"output"`
}

// LoadFromFile reads and parses a YAML config file, applying defaults to
// anything left unset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg as YAML to path.
func SaveToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// setDefaults fills in any field left zero-valued after parsing.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Node.ListenAddress == "" {
		cfg.Node.ListenAddress = "0.0.0.0:7646"
	}
	if cfg.Node.IdentityPath == "" {
		cfg.Node.IdentityPath = ".elysium/identity.key"
	}

	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = ".elysium/data"
	}
	if cfg.Store.PeerCachePath == "" {
		cfg.Store.PeerCachePath = ".elysium/peers.json"
	}

	if cfg.Dial.BackoffBase == 0 {
		cfg.Dial.BackoffBase = 1 * time.Second
	}
	if cfg.Dial.BackoffCap == 0 {
		cfg.Dial.BackoffCap = 60 * time.Second
	}
	if cfg.Dial.BackoffJitter == 0 {
		cfg.Dial.BackoffJitter = 0.2
	}
	if cfg.Dial.MaxConcurrent == 0 {
		cfg.Dial.MaxConcurrent = 10
	}
	if cfg.Dial.CooldownDuration == 0 {
		cfg.Dial.CooldownDuration = 5 * time.Second
	}

	if cfg.Session.HandshakeTimeout == 0 {
		cfg.Session.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Session.PingInterval == 0 {
		cfg.Session.PingInterval = 30 * time.Second
	}
	if cfg.Session.PingTimeout == 0 {
		cfg.Session.PingTimeout = 10 * time.Second
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 90 * time.Second
	}

	if cfg.Scorer.TopK == 0 {
		cfg.Scorer.TopK = 3
	}

	if cfg.API.BindAddr == "" {
		cfg.API.BindAddr = "127.0.0.1:7647"
	}
	if cfg.API.TokenPath == "" {
		cfg.API.TokenPath = ".elysium/api-token"
	}

	if cfg.Metrics.BindAddr == "" {
		cfg.Metrics.BindAddr = "127.0.0.1:7648"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
