// Package config loads the CloudStrike configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/history"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user configuration directory under the home directory.
const DirName = ".cloudstrike"

// Config is the on-disk configuration.
type Config struct {
	// Providers maps a cloud name (aws, azure, gcp) to its credentials.
	Providers map[string]collector.Credentials `yaml:"providers"`
	Scan      ScanConfig                       `yaml:"scan"`
	History   HistoryConfig                    `yaml:"history"`
	AI        AIConfig                         `yaml:"ai"`
}

// ScanConfig controls the orchestrator.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Strict  bool          `yaml:"strict"`
}

// HistoryConfig selects the ledger store.
type HistoryConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AIConfig configures optional enrichment.
type AIConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Dir returns ~/.cloudstrike.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// DefaultPath returns ~/.cloudstrike/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Providers: make(map[string]collector.Credentials),
		Scan:      ScanConfig{Timeout: 5 * time.Minute},
		History:   HistoryConfig{Backend: history.BackendJSON},
		AI:        AIConfig{Timeout: 60 * time.Second},
	}
	if dir, err := Dir(); err == nil {
		cfg.History.Path = filepath.Join(dir, "scan_history.json")
	}
	return cfg
}

// Load reads the file at path. An empty path means DefaultPath. A missing
// file yields Default. ${VAR} references in the file are expanded from the
// environment.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]collector.Credentials)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks provider names, the history backend and durations.
func (c *Config) Validate() error {
	for name := range c.Providers {
		cloud, err := finding.ParseCloud(name)
		if err != nil || cloud == finding.System || cloud == finding.Unknown {
			return fmt.Errorf("unknown provider %q (valid: aws, azure, gcp)", name)
		}
	}
	switch c.History.Backend {
	case "", history.BackendJSON, history.BackendSQLite:
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.Scan.Timeout < 0 {
		return fmt.Errorf("scan timeout must not be negative")
	}
	if c.AI.Timeout < 0 {
		return fmt.Errorf("ai timeout must not be negative")
	}
	return nil
}

// Bundle converts the provider section to a credential bundle.
func (c *Config) Bundle() collector.Bundle {
	b := make(collector.Bundle, len(c.Providers))
	for name, creds := range c.Providers {
		if cloud, err := finding.ParseCloud(name); err == nil {
			b[cloud] = creds
		}
	}
	return b
}
