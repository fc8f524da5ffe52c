// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the sync engine. It is read-only after
// LoadConfig/DefaultConfig returns.
type Config struct {
	// BaseURL is the root of the remote API, e.g. "https://farm.example.com/api".
	BaseURL string `yaml:"base_url"`

	// DatabasePath is the on-device SQLite file. ":memory:" for tests.
	DatabasePath string `yaml:"database_path"`

	// HTTPTimeout bounds every remote call.
	HTTPTimeout Duration `yaml:"http_timeout"`

	// RetryDelay is the fixed pause before the follow-up sync run that picks
	// up operations queued while a drain was in flight.
	RetryDelay Duration `yaml:"retry_delay"`
}

// DefaultConfig returns the standard tunables; BaseURL must still be set by
// the caller.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "herd.db",
		HTTPTimeout:  Duration(30 * time.Second),
		RetryDelay:   Duration(5 * time.Second),
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("config: base_url is required")
	}
	return cfg, nil
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}
