// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"context"
	"errors"
	"testing"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/platform"
)

func testPolicy() Policy {
	return Policy{
		AllowLAN:       true,
		LANCIDRs:       []string{"192.168.1.0/24"},
		TunnelPatterns: []string{"tun+"},
		AllowedDNS:     []string{"1.1.1.1"},
		VPNServers:     []VPNEndpoint{{IP: "198.51.100.10", Protocol: "udp", Port: 1194}},
	}
}

func TestDriver_Apply_HappyPath(t *testing.T) {
	runner := &platform.FakeCommandRunner{}
	d := NewDriver(runner, nil)

	if err := d.Apply(context.Background(), testPolicy(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var vpnAccept, dnsUDP, dnsTCP int
	for _, call := range runner.Calls {
		if call.Name != "iptables" {
			continue
		}
		joined := joinArgs(call.Args)
		if joined == "-A OUTPUT -p udp -d 198.51.100.10 --dport 1194 -j ACCEPT" {
			vpnAccept++
		}
		if joined == "-A OUTPUT -p udp -d 1.1.1.1 --dport 53 -j ACCEPT" {
			dnsUDP++
		}
		if joined == "-A OUTPUT -p tcp -d 1.1.1.1 --dport 53 -j ACCEPT" {
			dnsTCP++
		}
	}
	if vpnAccept != 1 {
		t.Errorf("expected exactly 1 VPN accept-out rule, got %d", vpnAccept)
	}
	if dnsUDP != 1 || dnsTCP != 1 {
		t.Errorf("expected exactly 1 DNS udp/tcp accept-out rule each, got udp=%d tcp=%d", dnsUDP, dnsTCP)
	}
}

func TestDriver_Apply_RollsBackOnMidApplyFailure(t *testing.T) {
	// Fail on the 7th iptables apply call (after flush succeeds).
	responses := make([]platform.FakeResponse, 0, 40)
	// Flush issues 3 policy-ACCEPT + 2*3 table flush/delete for iptables,
	// then the same for ip6tables: 18 calls total.
	for i := 0; i < 18; i++ {
		responses = append(responses, platform.FakeResponse{})
	}
	for i := 0; i < 6; i++ {
		responses = append(responses, platform.FakeResponse{})
	}
	responses = append(responses, platform.FakeResponse{Err: errors.New("iptables: rule insertion failed")})

	runner := &platform.FakeCommandRunner{Responses: responses}
	d := NewDriver(runner, nil)

	snap := &Snapshot{SnapshotID: "snap-1", IPTables: TableDump{"filter": "orig"}, IP6Tables: TableDump{"filter": "orig6"}}
	err := d.Apply(context.Background(), testPolicy(), snap)
	if err == nil {
		t.Fatal("expected apply failure to propagate")
	}
	if vpnerrors.GetKind(err) != vpnerrors.KindFirewallApplyFailed {
		t.Errorf("GetKind() = %v, want KindFirewallApplyFailed", vpnerrors.GetKind(err))
	}
}

func TestDriver_Flush_SetsAcceptAndFlushesTables(t *testing.T) {
	runner := &platform.FakeCommandRunner{}
	d := NewDriver(runner, nil)

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runner.Calls) == 0 {
		t.Fatal("expected flush to issue commands")
	}
	first := runner.Calls[0]
	if first.Name != "iptables" || joinArgs(first.Args) != "-P INPUT ACCEPT" {
		t.Errorf("first flush call = %+v", first)
	}
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
