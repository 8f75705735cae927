package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// appName is the directory name used under the platform config/data roots.
const appName = "saveport"

// configFileName is the default config file name when none is given on the
// command line or via environment override.
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config
// files. On Linux, respects XDG_CONFIG_HOME (defaults to
// ~/.config/saveport). On macOS, uses ~/Library/Application
// Support/saveport.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxXDGDir(home, "XDG_CONFIG_HOME", ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data: the daemon's PID file, and the command socket where no runtime
// directory is available. The database path is always set in config.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxXDGDir(home, "XDG_DATA_HOME", ".local/share")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultRuntimeDir returns the platform-specific directory for the
// daemon's command socket. On Linux, respects XDG_RUNTIME_DIR; elsewhere
// falls back to the data directory (sockets alongside the database are
// harmless, just less conventional).
func DefaultRuntimeDir() string {
	if runtime.GOOS == platformLinux {
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}
	return DefaultDataDir()
}

func linuxXDGDir(home, envVar, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file, used
// as the fallback when neither SAVEPORT_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, configFileName)
}

// DefaultSocketPath returns the full path to the daemon's command socket.
func DefaultSocketPath() string {
	dir := DefaultRuntimeDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "daemon.sock")
}

// DefaultPIDPath returns the full path to the daemon's PID file.
func DefaultPIDPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "daemon.pid")
}
