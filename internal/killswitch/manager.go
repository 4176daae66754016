// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package killswitch owns the enable/disable lifecycle of the packet-filter
// lockdown: snapshotting, applying, verifying, and restoring the firewall
// state that backs the kill switch.
package killswitch

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/firewall"
	"github.com/outpost-dev/vpnctl/internal/logging"
	"github.com/outpost-dev/vpnctl/internal/platform"
)

// State is the Manager's lifecycle state.
type State int

const (
	StateInactive State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "ACTIVE"
	}
	return "INACTIVE"
}

// persistedState is the JSON shape written to firewall.StatePath.
type persistedState struct {
	Active            bool                    `json:"active"`
	Timestamp         float64                 `json:"timestamp"`
	AllowedDNS        []string                `json:"allowed_dns"`
	AllowedVPNServers []firewall.VPNEndpoint  `json:"allowed_vpn_servers"`
	Interface         string                  `json:"interface"`
	BackupInterface   string                  `json:"backup_interface"`
}

// Manager enables and disables the kill switch. Enable/Disable take the
// manager's own mutex once at the public entry point and delegate to unexported
// lock-free helpers, functionally reentrant without a recursive mutex.
type Manager struct {
	driver *firewall.Driver
	probe  *platform.Probe
	logger *logging.Logger

	mu       sync.Mutex
	state    State
	policy   firewall.Policy
	snapshot *firewall.Snapshot

	strictResolvConfDNS bool
	tunnelPatterns      []string
}

// Option customizes a new Manager.
type Option func(*Manager)

// WithStrictResolvConfDNS opts into unioning /etc/resolv.conf nameservers
// into the DNS allow-list on Enable, matching the original tool's
// unconditional behavior. Default is off (see DESIGN.md).
func WithStrictResolvConfDNS(strict bool) Option {
	return func(m *Manager) { m.strictResolvConfDNS = strict }
}

// WithTunnelPatterns sets the interface name patterns (e.g. "tun+", "wg+")
// accepted as primary/backup tunnel interfaces.
func WithTunnelPatterns(patterns ...string) Option {
	return func(m *Manager) { m.tunnelPatterns = patterns }
}

// NewManager constructs a Manager. Nil driver/probe/logger fall back to
// real implementations.
func NewManager(driver *firewall.Driver, probe *platform.Probe, logger *logging.Logger, opts ...Option) *Manager {
	if driver == nil {
		driver = firewall.NewDriver(nil, logger)
	}
	if probe == nil {
		probe = platform.NewProbe(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}

	m := &Manager{
		driver:         driver,
		probe:          probe,
		logger:         logger.WithComponent("killswitch"),
		tunnelPatterns: []string{"tun+", "wg+"},
		policy:         firewall.Policy{TunnelPatterns: []string{"tun+", "wg+"}},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.policy.TunnelPatterns = m.tunnelPatterns
	return m
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AddVPNServer mutates the policy allow-list. If the Manager is already
// ACTIVE, the change takes effect only on the next Enable(ctx, _, force=true).
func (m *Manager) AddVPNServer(ip, protocol string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy.AddVPNServer(ip, protocol, port)
}

// AddDNS mutates the policy allow-list. See AddVPNServer for the
// already-ACTIVE caveat.
func (m *Manager) AddDNS(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy.AddDNS(ip)
}

// MergePolicyOverlay merges a loaded policy.hcl overlay into the in-memory
// policy. Intended to be called once, before the first Enable() of a
// process lifetime.
func (m *Manager) MergePolicyOverlay(extraDNS, extraLANCIDRs []string, extraVPN []firewall.VPNEndpoint, strict bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy.AllowedDNS = append(m.policy.AllowedDNS, extraDNS...)
	m.policy.LANCIDRs = append(m.policy.LANCIDRs, extraLANCIDRs...)
	m.policy.VPNServers = append(m.policy.VPNServers, extraVPN...)
	if strict {
		m.policy.Strict = true
	}
}

// Enable programs the lockdown policy. It is idempotent unless force is
// set, in which case the policy is re-applied even if already ACTIVE (used
// after AddVPNServer/AddDNS mutations, and by the monitor loop's
// force-reenable-on-leak path).
func (m *Manager) Enable(ctx context.Context, allowLAN, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enableLocked(ctx, allowLAN, force)
}

func (m *Manager) enableLocked(ctx context.Context, allowLAN, force bool) error {
	if m.state == StateActive && !force {
		return nil
	}

	snap, err := m.driver.Snapshot(ctx)
	if err != nil {
		return err
	}

	policy := m.policy
	policy.AllowLAN = allowLAN

	if m.strictResolvConfDNS {
		if nameservers, err := m.probe.ResolvConfNameservers(); err == nil {
			policy.AllowedDNS = append(policy.AllowedDNS, nameservers...)
		} else {
			m.logger.Warn("failed to read resolv.conf for strict DNS union", "error", err)
		}
	}

	if allowLAN {
		if route, err := m.probe.DefaultGatewayAndLAN(ctx); err == nil {
			policy.LANCIDRs = append(policy.LANCIDRs, route.LANCIDRs...)
		} else {
			m.logger.Warn("failed to probe default gateway/LAN", "error", err)
		}
	}

	if err := m.driver.Apply(ctx, policy, snap); err != nil {
		return err
	}

	ok, err := m.driver.Verify(ctx)
	if err != nil || !ok {
		if restoreErr := m.driver.Restore(ctx, snap); restoreErr != nil {
			m.logger.Error("restore after failed verify also failed", "error", restoreErr)
		}
		if err == nil {
			err = vpnerrors.New(vpnerrors.KindFirewallApplyFailed, "verify reported the lockdown policy did not take effect")
		}
		return err
	}

	m.policy = policy
	m.snapshot = snap
	m.state = StateActive

	if err := m.persistState(); err != nil {
		m.logger.Warn("failed to persist kill-switch state file", "error", err)
	}

	return nil
}

// Disable restores the pre-Enable firewall state. Idempotent when already
// INACTIVE.
func (m *Manager) Disable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disableLocked(ctx)
}

func (m *Manager) disableLocked(ctx context.Context) error {
	if m.state == StateInactive {
		return nil
	}

	if err := m.driver.Restore(ctx, m.snapshot); err != nil {
		return err
	}

	m.state = StateInactive
	m.snapshot = nil

	if err := firewall.RemoveBackup(); err != nil {
		m.logger.Warn("failed to remove crash-recovery backup", "error", err)
	}
	if err := os.Remove(firewall.StatePath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove kill-switch state file", "error", err)
	}

	return nil
}

func (m *Manager) persistState() error {
	state := persistedState{
		Active:            m.state == StateActive,
		Timestamp:         float64(time.Now().Unix()),
		AllowedDNS:        m.policy.AllowedDNS,
		AllowedVPNServers: m.policy.VPNServers,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(firewall.StatePath, data, 0600)
}
