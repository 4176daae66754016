// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"context"
	"testing"

	"github.com/outpost-dev/vpnctl/internal/platform"
)

func TestDriver_Restore_ReplaysStdinPerTable(t *testing.T) {
	runner := &platform.FakeCommandRunner{}
	d := NewDriver(runner, nil)

	snap := &Snapshot{
		SnapshotID: "snap-1",
		IPTables:   TableDump{"filter": "*filter\nCOMMIT\n", "nat": "", "mangle": ""},
		IP6Tables:  TableDump{"filter": "*filter\nCOMMIT\n", "nat": "", "mangle": ""},
	}

	if err := d.Restore(context.Background(), snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawFilterRestore bool
	for _, call := range runner.Calls {
		if call.Name == "iptables-restore" && string(call.Stdin) == "*filter\nCOMMIT\n" {
			sawFilterRestore = true
		}
	}
	if !sawFilterRestore {
		t.Error("expected iptables-restore to receive the filter table dump on stdin")
	}
}

func TestDriver_Verify_AllDropPolicies(t *testing.T) {
	output := `Chain INPUT (policy DROP)
target     prot opt source               destination

Chain FORWARD (policy DROP)
target     prot opt source               destination

Chain OUTPUT (policy DROP)
target     prot opt source               destination
`
	runner := &platform.FakeCommandRunner{
		Responses: []platform.FakeResponse{{Stdout: []byte(output)}},
	}
	d := NewDriver(runner, nil)

	ok, err := d.Verify(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected Verify to report all-DROP policies as true")
	}
}

func TestDriver_Verify_NotAllDrop(t *testing.T) {
	output := `Chain INPUT (policy ACCEPT)
Chain FORWARD (policy DROP)
Chain OUTPUT (policy DROP)
`
	runner := &platform.FakeCommandRunner{
		Responses: []platform.FakeResponse{{Stdout: []byte(output)}},
	}
	d := NewDriver(runner, nil)

	ok, err := d.Verify(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected Verify to report false when not all policies are DROP")
	}
}

func TestDriver_EmergencyOpen_SetsAllAccept(t *testing.T) {
	runner := &platform.FakeCommandRunner{}
	d := NewDriver(runner, nil)

	d.EmergencyOpen(context.Background())

	if len(runner.Calls) != 6 {
		t.Fatalf("expected 6 policy-ACCEPT calls, got %d", len(runner.Calls))
	}
	for _, call := range runner.Calls {
		if joinArgs(call.Args)[len(joinArgs(call.Args))-6:] != "ACCEPT" {
			t.Errorf("call %+v did not set ACCEPT", call)
		}
	}
}
