// Copyright 2025 Storymig Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads storymig configuration from a YAML file with
// STORYMIG_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"storymig/internal/common"
)

// Config is the full run configuration. The token, region and space ids
// are opaque external input; the pipeline never interprets them.
type Config struct {
	Token       string `yaml:"token"`
	SourceSpace int64  `yaml:"source_space"`
	TargetSpace int64  `yaml:"target_space"`
	Region      string `yaml:"region"`

	// Concurrency bounds the asset transfer and story persist pools.
	Concurrency int `yaml:"concurrency"`

	StagingDir  string   `yaml:"staging_dir"`
	JournalPath string   `yaml:"journal_path"`
	Exclude     []string `yaml:"exclude"`

	// StructuralRewrite replaces only leaf string values exactly equal to
	// a tracked URL instead of the default whole-document substitution.
	StructuralRewrite bool `yaml:"structural_rewrite"`

	LogLevel string `yaml:"log_level"`
}

// getConfigDir returns the config directory path.
// Uses STORYMIG_CONFIG_DIR env var if set, otherwise defaults to
// ~/.storymig. Computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("STORYMIG_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".storymig")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultJournalPath returns the default journal file path.
func DefaultJournalPath() string {
	return filepath.Join(getConfigDir(), "journal.db")
}

// DefaultStagingDir returns the default staging root.
func DefaultStagingDir() string {
	return filepath.Join(os.TempDir(), "storymig-staging")
}

// Load reads the config file at path (the default path when empty; a
// missing file is not an error) and applies environment overrides and
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", common.ErrSetup, path, err)
		}
	case os.IsNotExist(err):
		// Env-only configuration is fine.
	default:
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrSetup, path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STORYMIG_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("STORYMIG_SOURCE_SPACE"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SourceSpace = id
		}
	}
	if v := os.Getenv("STORYMIG_TARGET_SPACE"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TargetSpace = id
		}
	}
	if v := os.Getenv("STORYMIG_REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv("STORYMIG_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("STORYMIG_STAGING_DIR"); v != "" {
		cfg.StagingDir = v
	}
	if v := os.Getenv("STORYMIG_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("STORYMIG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 6
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = DefaultStagingDir()
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = DefaultJournalPath()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks that the required fields are present.
func (c *Config) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "token")
	}
	if c.SourceSpace == 0 {
		missing = append(missing, "source_space")
	}
	if c.TargetSpace == 0 {
		missing = append(missing, "target_space")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required config: %s", common.ErrSetup, strings.Join(missing, ", "))
	}
	if c.SourceSpace == c.TargetSpace {
		return fmt.Errorf("%w: source and target space must differ", common.ErrSetup)
	}
	return nil
}
