// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the VPN controller's configuration: a primary JSON
// file carrying the flat key set described in the external-interfaces
// contract, and an optional HCL policy overlay layered on top of whatever
// kill-switch policy the controller has already assembled.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/outpost-dev/vpnctl/internal/install"
)

// Config is the controller's primary JSON configuration.
type Config struct {
	DefaultProtocol       string   `json:"default_protocol"`
	DefaultPort           int      `json:"default_port"`
	KillSwitchEnabled     bool     `json:"kill_switch_enabled"`
	AutoReconnect         bool     `json:"auto_reconnect"`
	DNSServers            []string `json:"dns_servers"`
	CheckIntervalSeconds  int      `json:"check_interval"`
	MaxReconnectAttempts  int      `json:"max_reconnect_attempts"`
	CheckForLeaks         bool     `json:"check_for_leaks"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	StateDir  string `json:"state_dir"`

	StrictResolvConfDNS   bool `json:"strict_resolv_conf_dns"`
	LeakConfirmationProbes int `json:"leak_confirmation_probes"`
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	return Config{
		DefaultProtocol:        "udp",
		DefaultPort:            1194,
		KillSwitchEnabled:      true,
		AutoReconnect:          true,
		DNSServers:             []string{"1.1.1.1", "1.0.0.1"},
		CheckIntervalSeconds:   30,
		MaxReconnectAttempts:   3,
		CheckForLeaks:          true,
		LogLevel:               "info",
		LogFormat:              "json",
		StateDir:               install.GetStateDir(),
		StrictResolvConfDNS:    false,
		LeakConfirmationProbes: 2,
	}
}

// Load reads and parses the JSON config file at path on top of Default():
// keys absent from the file keep their default, while keys present in the
// file win even when set to false or 0 (a non-positive
// leak_confirmation_probes is reset to 2). A missing file is not an error:
// Load returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.LeakConfirmationProbes <= 0 {
		cfg.LeakConfirmationProbes = 2
	}

	return cfg, nil
}

// LoadDefaultPath loads the config from install.ConfigFilePath().
func LoadDefaultPath() (Config, error) {
	return Load(install.ConfigFilePath())
}

// Save writes cfg as indented JSON to path, creating parent directories as
// needed.
func Save(cfg Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
