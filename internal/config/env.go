package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "SAVEPORT_CONFIG"
	EnvRommURL = "ROMM_URL"
	EnvAPIKey  = "ROMM_API_KEY"
)

// EnvOverrides holds values derived from environment variables. Resolved
// by ReadEnvOverrides; applying them to a loaded Config is the caller's
// responsibility (see ApplyEnvOverrides).
type EnvOverrides struct {
	ConfigPath string // SAVEPORT_CONFIG: override config file path
	RommURL    string // ROMM_URL: overrides romm.url
	APIKey     string // ROMM_API_KEY: overrides romm.api_key
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify a Config; callers apply the relevant fields
// via ApplyEnvOverrides.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		RommURL:    os.Getenv(EnvRommURL),
		APIKey:     os.Getenv(EnvAPIKey),
	}
}

// ApplyEnvOverrides overwrites romm.url and romm.api_key on cfg when the
// corresponding environment variable is set. Environment variables take
// precedence over file settings for these two fields (spec.md §6).
func ApplyEnvOverrides(cfg *Config, env EnvOverrides) {
	if env.RommURL != "" {
		cfg.Romm.URL = env.RommURL
	}
	if env.APIKey != "" {
		cfg.Romm.APIKey = env.APIKey
	}
}
