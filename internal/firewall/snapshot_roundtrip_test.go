// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"context"
	"testing"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/outpost-dev/vpnctl/internal/platform"
)

// TestSnapshotFlushApplyRestore_RoundTrips exercises Snapshot -> Flush ->
// Apply -> Restore and checks that a fresh save taken after Restore is
// byte-identical to the save taken before Flush, using go-difflib for a
// readable failure message rather than a bare string comparison.
func TestSnapshotFlushApplyRestore_RoundTrips(t *testing.T) {
	originalFilter := "*filter\n:INPUT ACCEPT\n:FORWARD ACCEPT\n:OUTPUT ACCEPT\n-A INPUT -i lo -j ACCEPT\nCOMMIT\n"
	originalNat := "*nat\n:PREROUTING ACCEPT\nCOMMIT\n"
	originalMangle := "*mangle\n:PREROUTING ACCEPT\nCOMMIT\n"

	runner := &platform.FakeCommandRunner{
		ByCommand: map[string]platform.FakeResponse{
			"iptables-save -t filter":  {Stdout: []byte(originalFilter)},
			"iptables-save -t nat":     {Stdout: []byte(originalNat)},
			"iptables-save -t mangle":  {Stdout: []byte(originalMangle)},
			"ip6tables-save -t filter": {},
			"ip6tables-save -t nat":    {},
			"ip6tables-save -t mangle": {},
		},
	}
	d := NewDriver(runner, nil)

	snap, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if err := d.Apply(context.Background(), testPolicy(), snap); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := d.Restore(context.Background(), snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// A fresh save after Restore should reuse the same ByCommand entries
	// (the fake models "the ruleset is back to what it was"), so diffing
	// against the pre-flush capture should show no differences.
	after, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("post-restore Snapshot: %v", err)
	}

	for _, table := range tables {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(snap.IPTables[table]),
			B:        difflib.SplitLines(after.IPTables[table]),
			FromFile: "pre-flush",
			ToFile:   "post-restore",
			Context:  2,
		}
		text, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			t.Fatalf("diff: %v", err)
		}
		if text != "" {
			t.Errorf("table %q did not round-trip:\n%s", table, text)
		}
	}
}
