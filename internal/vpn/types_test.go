// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package vpn

import (
	"testing"
	"time"
)

func TestNewVPNServer_Accessors(t *testing.T) {
	s := NewVPNServer("s1", "vpn.example.net", "198.51.100.10", ProtocolUDP, 1194,
		WithLocation("Netherlands", "Amsterdam"),
		WithISP("Example Networks"),
		WithLatencyMS(42.5),
		WithLoad(17),
		WithScore(9.5),
		WithConfigPath("/etc/vpnctl/s1.ovpn"),
	)

	if s.ID() != "s1" || s.Hostname() != "vpn.example.net" || s.IP() != "198.51.100.10" {
		t.Fatalf("identity fields mismatch: %+v", s)
	}
	if s.Protocol() != ProtocolUDP || s.Port() != 1194 {
		t.Fatalf("endpoint fields mismatch: %+v", s)
	}
	if s.Location() != "Amsterdam, Netherlands" {
		t.Errorf("Location() = %q", s.Location())
	}
	if lat, ok := s.LatencyMS(); !ok || lat != 42.5 {
		t.Errorf("LatencyMS() = %v, %v", lat, ok)
	}
	if load, ok := s.Load(); !ok || load != 17 {
		t.Errorf("Load() = %v, %v", load, ok)
	}
	if s.Score() != 9.5 {
		t.Errorf("Score() = %v", s.Score())
	}
	if s.ConfigPath() != "/etc/vpnctl/s1.ovpn" {
		t.Errorf("ConfigPath() = %v", s.ConfigPath())
	}
}

func TestVPNServer_LatencyAbsent(t *testing.T) {
	s := NewVPNServer("s2", "vpn2.example.net", "198.51.100.20", ProtocolTCP, 443)
	if _, ok := s.LatencyMS(); ok {
		t.Error("expected no latency sample")
	}
	if _, ok := s.Load(); ok {
		t.Error("expected no load sample")
	}
}

func TestVPNServer_LocationFallback(t *testing.T) {
	countryOnly := NewVPNServer("s3", "h", "1.2.3.4", ProtocolUDP, 1194, WithLocation("France", ""))
	if countryOnly.Location() != "France" {
		t.Errorf("Location() = %q, want France", countryOnly.Location())
	}

	none := NewVPNServer("s4", "h", "1.2.3.4", ProtocolUDP, 1194)
	if none.Location() != "" {
		t.Errorf("Location() = %q, want empty", none.Location())
	}
}

func TestConnectionStats_Duration(t *testing.T) {
	var stats ConnectionStats
	if stats.Duration() != 0 {
		t.Error("zero-value stats should report zero duration")
	}

	stats.ConnectedSince = time.Now().Add(-5 * time.Second)
	if stats.Duration() < 5*time.Second {
		t.Errorf("Duration() = %v, want >= 5s", stats.Duration())
	}
}

func TestConnectionStats_Reset(t *testing.T) {
	stats := ConnectionStats{BytesSent: 100, ServerID: "s1"}
	stats.Reset()

	if stats.BytesSent != 0 || stats.ServerID != "" {
		t.Errorf("Reset() left fields set: %+v", stats)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateDisconnecting, "DISCONNECTING"},
		{StateRotating, "ROTATING"},
		{StateError, "ERROR"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
