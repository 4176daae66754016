// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/outpost-dev/vpnctl/internal/platform"
	"github.com/outpost-dev/vpnctl/internal/vpn"
)

func TestParseWGTransfer_SumsPeers(t *testing.T) {
	output := "wg0 pubkey1 1000 2000\nwg0 pubkey2 500 750\n"
	stats := parseWGTransfer(output)
	if stats.BytesReceived != 1500 || stats.BytesSent != 2750 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestParseWGTransfer_EmptyOutput(t *testing.T) {
	stats := parseWGTransfer("")
	if stats.BytesReceived != 0 || stats.BytesSent != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestInterfaceNameFromConfigPath(t *testing.T) {
	cases := map[string]string{
		"/etc/wireguard/wg0.conf": "wg0",
		"server.conf":             "server",
		"/a/b/c.conf":             "c",
	}
	for path, want := range cases {
		if got := interfaceNameFromConfigPath(path); got != want {
			t.Errorf("interfaceNameFromConfigPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestWireGuardBackend_ConnectRequiresConfigPath(t *testing.T) {
	b := NewWireGuardBackend(&platform.FakeCommandRunner{}, nil, nil)
	server := vpn.NewVPNServer("s1", "vpn.example.net", "198.51.100.10", vpn.ProtocolWireGuard, 51820)

	err := b.Connect(context.Background(), server)
	if err == nil {
		t.Fatal("expected error when ConfigPath is empty")
	}
}

func TestWireGuardBackend_ConnectAndDisconnect(t *testing.T) {
	runner := &platform.FakeCommandRunner{}
	b := NewWireGuardBackend(runner, nil, nil)
	server := vpn.NewVPNServer("s1", "vpn.example.net", "198.51.100.10", vpn.ProtocolWireGuard, 51820,
		vpn.WithConfigPath("/etc/wireguard/wg0.conf"))

	if err := b.Connect(context.Background(), server); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(runner.Calls) != 1 || runner.Calls[0].Name != "wg-quick" {
		t.Fatalf("unexpected calls: %+v", runner.Calls)
	}

	if err := b.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if len(runner.Calls) != 2 || runner.Calls[1].Args[0] != "down" {
		t.Fatalf("unexpected calls: %+v", runner.Calls)
	}
}

func TestWireGuardBackend_ConnectFailure(t *testing.T) {
	runner := &platform.FakeCommandRunner{
		Responses: []platform.FakeResponse{{Stderr: []byte("wg-quick: interface already exists"), Err: errors.New("exit 1")}},
	}
	b := NewWireGuardBackend(runner, nil, nil)
	server := vpn.NewVPNServer("s1", "vpn.example.net", "198.51.100.10", vpn.ProtocolWireGuard, 51820,
		vpn.WithConfigPath("/etc/wireguard/wg0.conf"))

	if err := b.Connect(context.Background(), server); err == nil {
		t.Fatal("expected error")
	}
}
