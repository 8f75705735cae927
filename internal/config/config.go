// Package config implements configuration loading, validation, and
// platform-specific path resolution for saveport.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/romm-sync/saveport/internal/pathfmt"
)

// Config is the top-level configuration structure, mirroring the [system]
// and [romm] sections of the config file.
type Config struct {
	System SystemConfig `toml:"system" json:"system"`
	Romm   RommConfig   `toml:"romm" json:"romm"`
}

// SystemConfig controls save discovery and the daemon's own behavior.
type SystemConfig struct {
	// Saves lists the path templates used to discover candidate save
	// files. At least one is required. Accepts either a single format
	// string or a list of them in the config file.
	Saves SaveTemplateList `toml:"saves" json:"saves"`

	// Allow, when nil, allows every discovered path. A non-nil (possibly
	// empty) slice restricts discovery to paths with one of these
	// prefixes — an explicit "allow = []" allows nothing.
	Allow []string `toml:"allow" json:"allow"`

	// Deny excludes paths with any of these prefixes.
	Deny []string `toml:"deny" json:"deny"`

	// SkipHidden drops paths whose file stem begins with ".". Defaults to
	// true.
	SkipHidden bool `toml:"skip_hidden" json:"skip_hidden"`

	// Database is the path to the sync-metadata SQLite file.
	Database string `toml:"database" json:"database"`

	// PollInterval is a duration literal (e.g. "5m") governing the
	// daemon's background sync timer.
	PollInterval string `toml:"poll_interval" json:"poll_interval"`

	// SyncOnFileChange enables the filesystem watcher trigger. Defaults
	// to true.
	SyncOnFileChange bool `toml:"sync_on_file_change" json:"sync_on_file_change"`
}

// RommConfig configures the remote ROM-management service client.
type RommConfig struct {
	// URL is the base URL of the remote service. Overridable via
	// $ROMM_URL.
	URL string `toml:"url" json:"url"`

	// APIKey authenticates every request via the "authorization" header.
	// Overridable via $ROMM_API_KEY.
	APIKey string `toml:"api_key" json:"api_key"`

	// Format, when set, is the upload/download filename template applied
	// to remote saves (the fmt argument of push_save/output_target).
	Format string `toml:"format" json:"format"`
}

// SaveTemplateList is system.saves: a single format-string scalar or a
// list of them in the config file, decoded into a flat slice either way.
type SaveTemplateList []string

// UnmarshalTOML implements toml.Unmarshaler. BurntSushi/toml has already
// decoded the TOML value into a Go value by the time this is called, so
// data is either a string (the scalar form) or a []interface{} of strings
// (the list form).
func (l *SaveTemplateList) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*l = SaveTemplateList{v}
	case []interface{}:
		out := make(SaveTemplateList, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("system.saves: expected a string, got %T", item)
			}
			out = append(out, s)
		}
		*l = out
	default:
		return fmt.Errorf("system.saves: expected a string or list of strings, got %T", data)
	}
	return nil
}

// UnmarshalJSON accepts either a JSON string or a JSON array of strings.
func (l *SaveTemplateList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = SaveTemplateList{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("system.saves: expected a string or list of strings: %w", err)
	}
	*l = list
	return nil
}

// SaveTemplates compiles the configured save path templates.
func (c *Config) SaveTemplates() []*pathfmt.FormatString {
	out := make([]*pathfmt.FormatString, 0, len(c.System.Saves))
	for _, s := range c.System.Saves {
		out = append(out, pathfmt.New(s))
	}
	return out
}

// RommFormat compiles the configured remote upload/download filename
// template, or nil if none is set.
func (c *Config) RommFormat() *pathfmt.FormatString {
	if c.Romm.Format == "" {
		return nil
	}
	return pathfmt.New(c.Romm.Format)
}
