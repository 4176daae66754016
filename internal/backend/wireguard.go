// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package backend

import (
	"context"
	"strconv"
	"strings"
	"sync"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/logging"
	"github.com/outpost-dev/vpnctl/internal/platform"
	"github.com/outpost-dev/vpnctl/internal/vpn"
)

// WireGuardBackend drives the tunnel via wg-quick and reads stats from
// "wg show all transfer".
type WireGuardBackend struct {
	runner platform.CommandRunner
	netlnk platform.Netlinker
	logger *logging.Logger

	mu         sync.Mutex
	configPath string
	iface      string
	connected  bool
}

// NewWireGuardBackend constructs a backend. A nil runner/netlnk defaults to
// the real implementations.
func NewWireGuardBackend(runner platform.CommandRunner, netlnk platform.Netlinker, logger *logging.Logger) *WireGuardBackend {
	if runner == nil {
		runner = platform.RealCommandRunner{}
	}
	if netlnk == nil {
		netlnk = platform.RealNetlinker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WireGuardBackend{runner: runner, netlnk: netlnk, logger: logger.WithComponent("backend.wireguard")}
}

// SetDNSServers implements Backend. WireGuard DNS is set via the config
// file's own DNS directive, which this backend does not rewrite, so this
// is a no-op placeholder matching the original tool's behavior.
func (b *WireGuardBackend) SetDNSServers(_ []string) {}

// Connect requires server.ConfigPath() to be set; it runs "wg-quick up
// <path>".
func (b *WireGuardBackend) Connect(ctx context.Context, server *vpn.VPNServer) error {
	if server.ConfigPath() == "" {
		return vpnerrors.New(vpnerrors.KindBackendStartFailed, "wireguard server has no config path")
	}

	_, stderr, err := b.runner.Run(ctx, "wg-quick", "up", server.ConfigPath())
	if err != nil {
		return vpnerrors.Wrapf(err, vpnerrors.KindBackendStartFailed, "wg-quick up failed: %s", strings.TrimSpace(string(stderr)))
	}

	b.mu.Lock()
	b.configPath = server.ConfigPath()
	b.iface = interfaceNameFromConfigPath(server.ConfigPath())
	b.connected = true
	b.mu.Unlock()

	return nil
}

// Disconnect runs "wg-quick down <path>".
func (b *WireGuardBackend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	path := b.configPath
	b.mu.Unlock()
	if path == "" {
		return nil
	}

	_, stderr, err := b.runner.Run(ctx, "wg-quick", "down", path)

	b.mu.Lock()
	b.connected = false
	b.configPath = ""
	b.iface = ""
	b.mu.Unlock()

	if err != nil {
		return vpnerrors.Wrapf(err, vpnerrors.KindBackendStartFailed, "wg-quick down failed: %s", strings.TrimSpace(string(stderr)))
	}
	return nil
}

// ForceDisconnect delegates to Disconnect: wg-quick down is itself
// non-blocking and idempotent, so there is no separate force path.
func (b *WireGuardBackend) ForceDisconnect() {
	_ = b.Disconnect(context.Background())
}

// IsUp combines a "wg show <iface>" zero-exit check with the platform
// probe's netlink-backed interface-existence check.
func (b *WireGuardBackend) IsUp() bool {
	b.mu.Lock()
	iface := b.iface
	connected := b.connected
	b.mu.Unlock()
	if !connected || iface == "" {
		return false
	}

	_, _, err := b.runner.Run(context.Background(), "wg", "show", iface)
	if err != nil {
		return false
	}
	return platform.InterfaceExists(b.netlnk, iface)
}

// Stats parses "wg show all transfer", summing across every peer line:
// "<iface> <pubkey> <rx> <tx>".
func (b *WireGuardBackend) Stats() (Stats, error) {
	stdout, _, err := b.runner.Run(context.Background(), "wg", "show", "all", "transfer")
	if err != nil {
		return Stats{}, vpnerrors.Wrap(err, vpnerrors.KindBackendStartFailed, "wg show all transfer failed")
	}
	return parseWGTransfer(string(stdout)), nil
}

func parseWGTransfer(output string) Stats {
	var stats Stats
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		rx, errRx := strconv.ParseUint(fields[2], 10, 64)
		tx, errTx := strconv.ParseUint(fields[3], 10, 64)
		if errRx == nil {
			stats.BytesReceived += rx
		}
		if errTx == nil {
			stats.BytesSent += tx
		}
	}
	return stats
}

// interfaceNameFromConfigPath derives the wg-quick interface name from a
// config path the way wg-quick itself does: the file's basename minus its
// extension.
func interfaceNameFromConfigPath(path string) string {
	name := path
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[:idx]
	}
	return name
}
