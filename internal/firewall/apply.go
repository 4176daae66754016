// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"context"
	"os"
	"strconv"
	"time"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
)

const (
	// logPrefixDrop tags the rate-limited LOG rules that record dropped
	// packets.
	logPrefixDrop = "vpnctl-killswitch-drop"
)

// command is one subprocess invocation the apply/flush sequence issues.
type command struct {
	name string
	args []string
}

// buildIPv4Commands renders the ordered lockdown sequence described for the
// filter table: loopback, conntrack, tunnel interfaces, LAN, DNS, VPN
// endpoints, DHCP, rate-limited ICMP (skipped in strict mode), rate-limited
// drop logging, then default-deny policies.
func buildIPv4Commands(p Policy) []command {
	var cmds []command
	add := func(args ...string) {
		cmds = append(cmds, command{name: "iptables", args: args})
	}

	add("-A", "INPUT", "-i", "lo", "-j", "ACCEPT")
	add("-A", "OUTPUT", "-o", "lo", "-j", "ACCEPT")

	add("-A", "INPUT", "-m", "state", "--state", "ESTABLISHED,RELATED", "-j", "ACCEPT")
	add("-A", "OUTPUT", "-m", "state", "--state", "ESTABLISHED,RELATED", "-j", "ACCEPT")

	for _, pattern := range p.TunnelPatterns {
		add("-A", "INPUT", "-i", pattern, "-j", "ACCEPT")
		add("-A", "OUTPUT", "-o", pattern, "-j", "ACCEPT")
	}

	if p.AllowLAN {
		for _, cidr := range p.LANCIDRs {
			add("-A", "INPUT", "-s", cidr, "-j", "ACCEPT")
			add("-A", "OUTPUT", "-d", cidr, "-j", "ACCEPT")
		}
	}

	for _, dns := range p.AllowedDNS {
		add("-A", "OUTPUT", "-p", "udp", "-d", dns, "--dport", "53", "-j", "ACCEPT")
		add("-A", "OUTPUT", "-p", "tcp", "-d", dns, "--dport", "53", "-j", "ACCEPT")
	}

	for _, srv := range p.VPNServers {
		add("-A", "OUTPUT", "-p", srv.Protocol, "-d", srv.IP, "--dport", strconv.Itoa(srv.Port), "-j", "ACCEPT")
	}

	add("-A", "OUTPUT", "-p", "udp", "--sport", "68", "--dport", "67", "-j", "ACCEPT")
	add("-A", "INPUT", "-p", "udp", "--sport", "67", "--dport", "68", "-j", "ACCEPT")

	if !p.Strict {
		add("-A", "OUTPUT", "-p", "icmp", "--icmp-type", "echo-request", "-m", "limit", "--limit", "5/sec", "-j", "ACCEPT")
		add("-A", "INPUT", "-p", "icmp", "--icmp-type", "echo-reply", "-j", "ACCEPT")
	}

	add("-A", "INPUT", "-m", "limit", "--limit", "5/min", "-j", "LOG", "--log-prefix", logPrefixDrop+"-in: ")
	add("-A", "OUTPUT", "-m", "limit", "--limit", "5/min", "-j", "LOG", "--log-prefix", logPrefixDrop+"-out: ")

	add("-P", "INPUT", "DROP")
	add("-P", "FORWARD", "DROP")
	add("-P", "OUTPUT", "DROP")

	return cmds
}

// buildIPv6Commands locks down ip6tables unconditionally: the kill switch
// has no allow-list story for IPv6, so the only safe behavior is deny-all.
func buildIPv6Commands() []command {
	return []command{
		{name: "ip6tables", args: []string{"-F"}},
		{name: "ip6tables", args: []string{"-P", "INPUT", "DROP"}},
		{name: "ip6tables", args: []string{"-P", "FORWARD", "DROP"}},
		{name: "ip6tables", args: []string{"-P", "OUTPUT", "DROP"}},
	}
}

// disableIPv6Sysctl writes "1" to the kernel knobs that fully disable IPv6,
// belt-and-suspenders alongside the ip6tables DROP policies. Failure here
// is a warning, not fatal, provided the ip6tables DROP policies succeeded.
func disableIPv6Sysctl() error {
	paths := []string{
		"/proc/sys/net/ipv6/conf/all/disable_ipv6",
		"/proc/sys/net/ipv6/conf/default/disable_ipv6",
	}
	var firstErr error
	for _, path := range paths {
		if err := os.WriteFile(path, []byte("1"), 0644); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Apply flushes the current ruleset and programs policy in order. If any
// command fails, Apply immediately attempts Restore(ctx, snapshot) and
// returns the original failure.
func (d *Driver) Apply(ctx context.Context, policy Policy, snapshot *Snapshot) error {
	if err := d.Flush(ctx); err != nil {
		return vpnerrors.Wrap(err, vpnerrors.KindFirewallApplyFailed, "flush before apply failed")
	}

	for _, cmd := range buildIPv4Commands(policy) {
		if err := d.run(ctx, cmd); err != nil {
			applyErr := vpnerrors.Wrapf(err, vpnerrors.KindFirewallApplyFailed, "apply failed on %s %v", cmd.name, cmd.args)
			if snapshot != nil {
				if restoreErr := d.Restore(ctx, snapshot); restoreErr != nil {
					d.logger.Error("restore after failed apply also failed", "error", restoreErr)
				}
			}
			return applyErr
		}
	}

	for _, cmd := range buildIPv6Commands() {
		if err := d.run(ctx, cmd); err != nil {
			applyErr := vpnerrors.Wrapf(err, vpnerrors.KindFirewallApplyFailed, "ipv6 apply failed on %s %v", cmd.name, cmd.args)
			if snapshot != nil {
				if restoreErr := d.Restore(ctx, snapshot); restoreErr != nil {
					d.logger.Error("restore after failed ipv6 apply also failed", "error", restoreErr)
				}
			}
			return applyErr
		}
	}

	if err := disableIPv6Sysctl(); err != nil {
		d.logger.Warn("failed to write disable_ipv6 sysctl", "error", err)
	}

	return nil
}

func (d *Driver) run(ctx context.Context, cmd command) error {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _, err := d.runner.Run(runCtx, cmd.name, cmd.args...)
	return err
}

// Flush sets default policies to ACCEPT and flushes/deletes user chains
// across filter, nat, and mangle for both families. Idempotent.
func (d *Driver) Flush(ctx context.Context) error {
	cmds := []command{
		{"iptables", []string{"-P", "INPUT", "ACCEPT"}},
		{"iptables", []string{"-P", "FORWARD", "ACCEPT"}},
		{"iptables", []string{"-P", "OUTPUT", "ACCEPT"}},
	}
	for _, table := range tables {
		cmds = append(cmds,
			command{"iptables", []string{"-t", table, "-F"}},
			command{"iptables", []string{"-t", table, "-X"}},
		)
	}
	cmds = append(cmds,
		command{"ip6tables", []string{"-P", "INPUT", "ACCEPT"}},
		command{"ip6tables", []string{"-P", "FORWARD", "ACCEPT"}},
		command{"ip6tables", []string{"-P", "OUTPUT", "ACCEPT"}},
	)
	for _, table := range tables {
		cmds = append(cmds,
			command{"ip6tables", []string{"-t", table, "-F"}},
			command{"ip6tables", []string{"-t", table, "-X"}},
		)
	}

	for _, cmd := range cmds {
		if err := d.run(ctx, cmd); err != nil {
			return vpnerrors.Wrapf(err, vpnerrors.KindFirewallApplyFailed, "flush failed on %s %v", cmd.name, cmd.args)
		}
	}
	return nil
}
