// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall drives the host packet filter (iptables/ip6tables) that
// backs the kill switch: it snapshots the existing ruleset, applies a
// lockdown policy, verifies it took effect, and restores the original
// ruleset on any failure or on an explicit disable.
package firewall

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/logging"
	"github.com/outpost-dev/vpnctl/internal/platform"
)

// BackupPath is the well-known crash-recovery location for a Snapshot.
const BackupPath = "/tmp/vpn_killswitch_backup.json"

// StatePath is the well-known location of the kill-switch activation state.
const StatePath = "/tmp/vpn_killswitch_state.json"

var tables = []string{"filter", "nat", "mangle"}

// TableDump holds the iptables-save output for one table.
type TableDump map[string]string

// Snapshot is a saved firewall ruleset, tagged with an ID so a stale
// crash-recovery file from an unrelated earlier run is never mistaken
// for a live one.
type Snapshot struct {
	SnapshotID string    `json:"snapshot_id"`
	Timestamp  float64   `json:"timestamp"`
	IPTables   TableDump `json:"iptables"`
	IP6Tables  TableDump `json:"ip6tables"`
}

// Driver snapshots, applies, and restores the packet filter.
type Driver struct {
	runner platform.CommandRunner
	logger *logging.Logger
}

// NewDriver constructs a Driver. A nil runner defaults to
// platform.RealCommandRunner; a nil logger defaults to logging.Default().
func NewDriver(runner platform.CommandRunner, logger *logging.Logger) *Driver {
	if runner == nil {
		runner = platform.RealCommandRunner{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Driver{runner: runner, logger: logger.WithComponent("firewall")}
}

// Snapshot saves the current filter, nat, and mangle tables for both
// address families, and duplicates the result to BackupPath for crash
// recovery.
func (d *Driver) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		SnapshotID: uuid.NewString(),
		Timestamp:  float64(time.Now().Unix()),
		IPTables:   TableDump{},
		IP6Tables:  TableDump{},
	}

	for _, table := range tables {
		out, err := d.saveTable(ctx, "iptables-save", table)
		if err != nil {
			return nil, vpnerrors.Wrap(err, vpnerrors.KindFirewallSnapshotFailed, "iptables-save -t "+table+" failed")
		}
		snap.IPTables[table] = out

		out6, err := d.saveTable(ctx, "ip6tables-save", table)
		if err != nil {
			return nil, vpnerrors.Wrap(err, vpnerrors.KindFirewallSnapshotFailed, "ip6tables-save -t "+table+" failed")
		}
		snap.IP6Tables[table] = out6
	}

	if err := d.writeBackup(snap); err != nil {
		d.logger.Warn("failed to write crash-recovery backup", "error", err, "path", BackupPath)
	}

	return snap, nil
}

func (d *Driver) saveTable(ctx context.Context, tool, table string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stdout, _, err := d.runner.Run(runCtx, tool, "-t", table)
	if err != nil {
		return "", err
	}
	return string(stdout), nil
}

func (d *Driver) writeBackup(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(BackupPath, data, 0600)
}

// ReadBackup loads the on-disk crash-recovery snapshot, used when the
// in-memory snapshot is unavailable (e.g. after a process restart).
func ReadBackup() (*Snapshot, error) {
	data, err := os.ReadFile(BackupPath)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RemoveBackup deletes the on-disk crash-recovery snapshot, called once a
// Disable completes successfully.
func RemoveBackup() error {
	err := os.Remove(BackupPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
