// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package install

import (
	"os"
	"path/filepath"

	"github.com/outpost-dev/vpnctl/internal/brand"
)

// Exported variables for convenient access without calling the Get* functions.
var (
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultCacheDir  string
	DefaultRunDir    string

	// Build-time path overrides (set via -ldflags), letting distributions
	// move the defaults back to /etc, /var, etc.
	BuildDefaultConfigDir = ""
	BuildDefaultStateDir  = ""
	BuildDefaultLogDir    = ""
	BuildDefaultCacheDir  = ""
	BuildDefaultRunDir    = ""
)

func init() {
	b := brand.Get()

	if BuildDefaultConfigDir != "" {
		DefaultConfigDir = BuildDefaultConfigDir
	} else {
		DefaultConfigDir = b.DefaultConfigDir
	}

	if BuildDefaultStateDir != "" {
		DefaultStateDir = BuildDefaultStateDir
	} else {
		DefaultStateDir = b.DefaultStateDir
	}

	if BuildDefaultLogDir != "" {
		DefaultLogDir = BuildDefaultLogDir
	} else {
		DefaultLogDir = b.DefaultLogDir
	}

	if BuildDefaultCacheDir != "" {
		DefaultCacheDir = BuildDefaultCacheDir
	} else {
		DefaultCacheDir = b.DefaultCacheDir
	}

	if BuildDefaultRunDir != "" {
		DefaultRunDir = BuildDefaultRunDir
	} else {
		DefaultRunDir = b.DefaultRunDir
	}
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: VPNCTL_STATE_DIR > VPNCTL_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// GetLogDir returns the log directory, checking env vars first.
// Priority: VPNCTL_LOG_DIR > VPNCTL_PREFIX/log > DefaultLogDir
func GetLogDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_LOG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "log")
	}
	return DefaultLogDir
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: VPNCTL_CONFIG_DIR > VPNCTL_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// GetCacheDir returns the cache directory, checking env vars first.
// Priority: VPNCTL_CACHE_DIR > VPNCTL_PREFIX/cache > DefaultCacheDir
func GetCacheDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_CACHE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "cache")
	}
	return DefaultCacheDir
}

// GetRunDir returns the runtime directory for the daemon's PID, status and
// rotate-request files.
// Priority: VPNCTL_RUN_DIR > VPNCTL_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_RUN_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "run")
	}
	return DefaultRunDir
}

// ConfigFilePath returns the full path to the primary JSON config file.
func ConfigFilePath() string {
	return filepath.Join(GetConfigDir(), brand.ConfigFileName)
}

// PolicyFilePath returns the full path to the optional HCL policy overlay.
func PolicyFilePath() string {
	return filepath.Join(GetConfigDir(), "policy.hcl")
}

// InventoryFilePath returns the full path to the cached server inventory.
func InventoryFilePath() string {
	return filepath.Join(GetCacheDir(), "servers.yaml")
}
