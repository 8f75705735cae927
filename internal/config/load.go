package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// decodeFile deserializes a single config file into cfg, discriminating
// format by extension: ".json" decodes as JSON; every other extension
// (including none) decodes as TOML.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config file %s as JSON: %w", path, err)
		}
		return nil
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("parsing config file %s as TOML: %w", path, err)
	}
	return nil
}

// merge applies overlay onto base, right-biased: non-zero overlay scalars
// replace the base value, and list fields concatenate (base entries first,
// then overlay entries).
func merge(base *Config, overlay *Config) {
	if len(overlay.System.Saves) > 0 {
		base.System.Saves = append(base.System.Saves, overlay.System.Saves...)
	}
	if overlay.System.Allow != nil {
		base.System.Allow = append(base.System.Allow, overlay.System.Allow...)
	}
	if len(overlay.System.Deny) > 0 {
		base.System.Deny = append(base.System.Deny, overlay.System.Deny...)
	}
	if overlay.System.Database != "" {
		base.System.Database = overlay.System.Database
	}
	if overlay.System.PollInterval != "" {
		base.System.PollInterval = overlay.System.PollInterval
	}
	// SkipHidden / SyncOnFileChange are bools with a default of true. Load
	// decodes each file on top of the defaults, so a file that omits a
	// flag leaves it true in the overlay. A later file can turn a flag
	// off; it cannot turn back on a flag an earlier file turned off.
	if !overlay.System.SkipHidden {
		base.System.SkipHidden = overlay.System.SkipHidden
	}
	if !overlay.System.SyncOnFileChange {
		base.System.SyncOnFileChange = overlay.System.SyncOnFileChange
	}

	if overlay.Romm.URL != "" {
		base.Romm.URL = overlay.Romm.URL
	}
	if overlay.Romm.APIKey != "" {
		base.Romm.APIKey = overlay.Romm.APIKey
	}
	if overlay.Romm.Format != "" {
		base.Romm.Format = overlay.Romm.Format
	}
}

// Load reads and merges one or more config files (right-biased: later
// paths override earlier scalars and concatenate lists), applies
// environment overrides, validates the result, and returns the resolved
// Config.
func Load(paths []string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		logger.Debug("loading config file", "path", path)

		overlay := *DefaultConfig()
		if err := decodeFile(path, &overlay); err != nil {
			return nil, err
		}
		merge(cfg, &overlay)
	}

	ApplyEnvOverrides(cfg, ReadEnvOverrides())

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config loaded",
		"save_templates", len(cfg.System.Saves),
		"database", cfg.System.Database,
	)

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns DefaultConfig (still subject
// to env overrides and validation) when paths is empty or every listed
// file is missing.
func LoadOrDefault(paths []string, logger *slog.Logger) (*Config, error) {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			logger.Debug("config file not found, skipping", "path", p)
			continue
		}
		existing = append(existing, p)
	}

	if len(existing) == 0 {
		cfg := DefaultConfig()
		ApplyEnvOverrides(cfg, ReadEnvOverrides())
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return cfg, nil
	}

	return Load(existing, logger)
}

// ResolveConfigPaths determines the config file path list using priority:
// CLI flag > environment variable > platform default. Only one file is
// used unless the CLI flag is given multiple times; callers that want
// multi-file merging pass multiple --config flags, each added in order.
func ResolveConfigPaths(env EnvOverrides, cliPaths []string, logger *slog.Logger) []string {
	if len(cliPaths) > 0 {
		logger.Debug("config path resolved", "paths", cliPaths, "source", "cli")
		return cliPaths
	}
	if env.ConfigPath != "" {
		logger.Debug("config path resolved", "path", env.ConfigPath, "source", "env")
		return []string{env.ConfigPath}
	}
	path := DefaultConfigPath()
	logger.Debug("config path resolved", "path", path, "source", "default")
	return []string{path}
}
