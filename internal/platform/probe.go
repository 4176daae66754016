// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package platform

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
)

// Capabilities reports what the host can support, probed once at startup.
type Capabilities struct {
	OS          string
	IsRoot      bool
	HasIPTables bool
	HasIP6Tables bool
	HasIPTablesSave    bool
	HasIPTablesRestore bool
	HasIP            bool
	HasOpenVPN        bool
	HasWG             bool
	HasWGQuick        bool
}

// KillSwitchReady reports whether every tool the Packet-Filter Driver
// needs is present and the process has root privilege.
func (c Capabilities) KillSwitchReady() bool {
	return c.IsRoot && c.HasIPTables && c.HasIP6Tables && c.HasIPTablesSave && c.HasIPTablesRestore
}

// Probe queries the host for capabilities and network configuration.
type Probe struct {
	runner CommandRunner
}

// NewProbe constructs a Probe. A nil runner defaults to RealCommandRunner.
func NewProbe(runner CommandRunner) *Probe {
	if runner == nil {
		runner = RealCommandRunner{}
	}
	return &Probe{runner: runner}
}

// DetectCapabilities reports OS family, effective privilege, and which
// required external tools are present on PATH.
func (p *Probe) DetectCapabilities() Capabilities {
	return Capabilities{
		OS:                 runtime.GOOS,
		IsRoot:             os.Geteuid() == 0,
		HasIPTables:        p.hasTool("iptables"),
		HasIP6Tables:       p.hasTool("ip6tables"),
		HasIPTablesSave:    p.hasTool("iptables-save"),
		HasIPTablesRestore: p.hasTool("iptables-restore"),
		HasIP:              p.hasTool("ip"),
		HasOpenVPN:         p.hasTool("openvpn"),
		HasWG:              p.hasTool("wg"),
		HasWGQuick:         p.hasTool("wg-quick"),
	}
}

// RequireKillSwitchReady returns a KindPlatformUnavailable error describing
// what's missing when the host can't safely run the kill switch.
func (p *Probe) RequireKillSwitchReady() error {
	caps := p.DetectCapabilities()
	if caps.KillSwitchReady() {
		return nil
	}

	var missing []string
	if !caps.IsRoot {
		missing = append(missing, "root privilege")
	}
	if !caps.HasIPTables {
		missing = append(missing, "iptables")
	}
	if !caps.HasIP6Tables {
		missing = append(missing, "ip6tables")
	}
	if !caps.HasIPTablesSave {
		missing = append(missing, "iptables-save")
	}
	if !caps.HasIPTablesRestore {
		missing = append(missing, "iptables-restore")
	}

	return vpnerrors.Errorf(vpnerrors.KindPlatformUnavailable,
		"kill switch unavailable: missing %s", strings.Join(missing, ", "))
}

func (p *Probe) hasTool(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := p.runner.Run(ctx, "which", name)
	return err == nil
}

// RouteInfo is the parsed result of "ip route show".
type RouteInfo struct {
	DefaultGateway string
	LANCIDRs       []string
}

var defaultGatewayRe = regexp.MustCompile(`default via (\S+)`)
var linkScopeCIDRRe = regexp.MustCompile(`^(\S+/\d+)\s+dev\s+\S+.*scope link`)

// DefaultGatewayAndLAN runs "ip route show" and extracts the default
// gateway plus any link-scope CIDRs (LAN ranges).
func (p *Probe) DefaultGatewayAndLAN(ctx context.Context) (RouteInfo, error) {
	stdout, _, err := p.runner.Run(ctx, "ip", "route", "show")
	if err != nil {
		return RouteInfo{}, vpnerrors.Wrap(err, vpnerrors.KindUnavailable, "ip route show failed")
	}

	var info RouteInfo
	scanner := bufio.NewScanner(strings.NewReader(string(stdout)))
	for scanner.Scan() {
		line := scanner.Text()

		if m := defaultGatewayRe.FindStringSubmatch(line); m != nil && info.DefaultGateway == "" {
			info.DefaultGateway = m[1]
		}
		if m := linkScopeCIDRRe.FindStringSubmatch(line); m != nil {
			info.LANCIDRs = append(info.LANCIDRs, m[1])
		}
	}

	return info, nil
}

// ResolvConfPath is the well-known location of the system resolver
// configuration. A var rather than a const so tests can point it at a
// fixture file; overridable per-call via ResolvConfNameserversAt.
var ResolvConfPath = "/etc/resolv.conf"

// ResolvConfNameservers parses /etc/resolv.conf for "nameserver" lines.
func (p *Probe) ResolvConfNameservers() ([]string, error) {
	return p.ResolvConfNameserversAt(ResolvConfPath)
}

// ResolvConfNameserversAt parses "nameserver" lines out of the resolv.conf
// file at path.
func (p *Probe) ResolvConfNameserversAt(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vpnerrors.Wrap(err, vpnerrors.KindUnavailable, "read "+path+" failed")
	}

	var servers []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "nameserver" {
			servers = append(servers, fields[1])
		}
	}
	return servers, nil
}
