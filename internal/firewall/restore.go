// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"context"
	"regexp"
	"time"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/platform"
)

// Restore replays a Snapshot's iptables-save/ip6tables-save output through
// iptables-restore/ip6tables-restore for each table. On total failure it
// falls back to the on-disk crash-recovery snapshot, and on total failure
// of that, to EmergencyOpen.
func (d *Driver) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		if onDisk, err := ReadBackup(); err == nil {
			snap = onDisk
		} else {
			d.logger.Error("no in-memory snapshot and no on-disk backup; opening firewall", "error", err)
			d.EmergencyOpen(ctx)
			return vpnerrors.Wrap(err, vpnerrors.KindFirewallRestoreFailed, "no snapshot available to restore")
		}
	}

	if err := d.restoreFrom(ctx, snap); err != nil {
		d.logger.Warn("in-memory restore failed, trying on-disk backup", "error", err)

		onDisk, readErr := ReadBackup()
		if readErr != nil || d.restoreFrom(ctx, onDisk) != nil {
			d.logger.Error("on-disk restore also failed; opening firewall", "error", err)
			d.EmergencyOpen(ctx)
			return vpnerrors.Wrap(err, vpnerrors.KindFirewallRestoreFailed, "both in-memory and on-disk restore failed")
		}
	}

	return nil
}

func (d *Driver) restoreFrom(ctx context.Context, snap *Snapshot) error {
	for _, table := range tables {
		if err := d.restoreTable(ctx, "iptables-restore", table, snap.IPTables[table]); err != nil {
			return err
		}
		if err := d.restoreTable(ctx, "ip6tables-restore", table, snap.IP6Tables[table]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) restoreTable(ctx context.Context, tool, table, dump string) error {
	if dump == "" {
		return nil
	}
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stdinRunner, ok := d.runner.(platform.StdinCommandRunner)
	if !ok {
		_, _, err := d.runner.Run(runCtx, tool, "-T", table)
		return err
	}

	_, _, err := stdinRunner.RunWithStdin(runCtx, tool, []byte(dump), "-T", table)
	return err
}

// EmergencyOpen sets every default policy to ACCEPT and never returns an
// error to the caller; it is the last-resort recovery path and must never
// itself block on failure.
func (d *Driver) EmergencyOpen(ctx context.Context) {
	d.logger.Error("emergency opening firewall", "critical", true)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, cmd := range []command{
		{"iptables", []string{"-P", "INPUT", "ACCEPT"}},
		{"iptables", []string{"-P", "FORWARD", "ACCEPT"}},
		{"iptables", []string{"-P", "OUTPUT", "ACCEPT"}},
		{"ip6tables", []string{"-P", "INPUT", "ACCEPT"}},
		{"ip6tables", []string{"-P", "FORWARD", "ACCEPT"}},
		{"ip6tables", []string{"-P", "OUTPUT", "ACCEPT"}},
	} {
		if _, _, err := d.runner.Run(runCtx, cmd.name, cmd.args...); err != nil {
			d.logger.Error("emergency open command failed", "command", cmd.name, "args", cmd.args, "error", err)
		}
	}
}

var dropPolicyRe = regexp.MustCompile(`(?m)^Chain (INPUT|FORWARD|OUTPUT) \(policy DROP\)`)

// Verify runs "iptables -L -n" and confirms INPUT/FORWARD/OUTPUT are all
// set to the DROP policy, the on-host signature of an active kill switch.
func (d *Driver) Verify(ctx context.Context) (bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stdout, _, err := d.runner.Run(runCtx, "iptables", "-L", "-n")
	if err != nil {
		return false, vpnerrors.Wrap(err, vpnerrors.KindFirewallApplyFailed, "iptables -L -n failed")
	}

	matches := dropPolicyRe.FindAll(stdout, -1)
	return len(matches) == 3, nil
}
