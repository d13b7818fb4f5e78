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
	"net"
)

// Level classifies a validation Issue's severity.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Issue is a single configuration problem found by Validate.
type Issue struct {
	Field   string
	Message string
	Level   Level
}

// Validate checks cfg for problems that would prevent the node from
// starting (Level error) or that are merely suspicious (Level warning).
// Load returns an error if any Level error issue is present.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if _, _, err := net.SplitHostPort(cfg.Node.ListenAddress); err != nil {
		issues = append(issues, Issue{
			Field:   "node.listen_address",
			Message: fmt.Sprintf("invalid listen address: %v", err),
			Level:   LevelError,
		})
	}

	if cfg.Node.IdentityPath == "" {
		issues = append(issues, Issue{
			Field:   "node.identity_path",
			Message: "identity path is required",
			Level:   LevelError,
		})
	}

	if cfg.Store.DataDir == "" {
		issues = append(issues, Issue{
			Field:   "store.data_dir",
			Message: "data directory is required",
			Level:   LevelError,
		})
	}

	if cfg.Dial.MaxConcurrent < 1 {
		issues = append(issues, Issue{
			Field:   "dial.max_concurrent_dials",
			Message: "must allow at least one concurrent dial",
			Level:   LevelError,
		})
	}
	if cfg.Dial.BackoffCap < cfg.Dial.BackoffBase {
		issues = append(issues, Issue{
			Field:   "dial.backoff_cap",
			Message: "backoff cap is below backoff base",
			Level:   LevelWarning,
		})
	}
	if cfg.Dial.BackoffJitter < 0 || cfg.Dial.BackoffJitter > 1 {
		issues = append(issues, Issue{
			Field:   "dial.backoff_jitter",
			Message: "jitter fraction should be between 0 and 1",
			Level:   LevelWarning,
		})
	}

	if cfg.Scorer.TopK < 1 {
		issues = append(issues, Issue{
			Field:   "scorer.top_k",
			Message: "must select at least one peer",
			Level:   LevelError,
		})
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.BindAddr); err != nil {
			issues = append(issues, Issue{
				Field:   "api.bind_address",
				Message: fmt.Sprintf("invalid bind address: %v", err),
				Level:   LevelError,
			})
		}
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.BindAddr); err != nil {
			issues = append(issues, Issue{
				Field:   "metrics.bind_address",
				Message: fmt.Sprintf("invalid bind address: %v", err),
				Level:   LevelError,
			})
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, Issue{
			Field:   "logging.level",
			Message: fmt.Sprintf("unrecognized log level %q", cfg.Logging.Level),
			Level:   LevelWarning,
		})
	}

	return issues
}
