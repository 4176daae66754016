// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package killswitch

import (
	"context"
	"testing"

	"github.com/outpost-dev/vpnctl/internal/firewall"
	"github.com/outpost-dev/vpnctl/internal/platform"
)

func newTestManager(t *testing.T, runner platform.CommandRunner) *Manager {
	t.Helper()
	driver := firewall.NewDriver(runner, nil)
	probe := platform.NewProbe(runner)
	return NewManager(driver, probe, nil)
}

func fakeAllGoodRunner() *platform.FakeCommandRunner {
	return &platform.FakeCommandRunner{
		ByCommand: map[string]platform.FakeResponse{
			"iptables-save -t filter":  {Stdout: []byte("*filter\nCOMMIT\n")},
			"iptables-save -t nat":     {},
			"iptables-save -t mangle":  {},
			"ip6tables-save -t filter": {},
			"ip6tables-save -t nat":    {},
			"ip6tables-save -t mangle": {},
			"iptables -L -n": {Stdout: []byte(
				"Chain INPUT (policy DROP)\nChain FORWARD (policy DROP)\nChain OUTPUT (policy DROP)\n")},
		},
	}
}

func TestManager_Enable_Success(t *testing.T) {
	runner := fakeAllGoodRunner()
	m := newTestManager(t, runner)
	m.AddVPNServer("198.51.100.10", "udp", 1194)
	m.AddDNS("1.1.1.1")

	if err := m.Enable(context.Background(), false, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != StateActive {
		t.Errorf("State() = %v, want ACTIVE", m.State())
	}
}

func TestManager_Enable_IdempotentWithoutForce(t *testing.T) {
	runner := fakeAllGoodRunner()
	m := newTestManager(t, runner)

	if err := m.Enable(context.Background(), false, false); err != nil {
		t.Fatalf("first enable: %v", err)
	}
	callsAfterFirst := len(runner.Calls)

	if err := m.Enable(context.Background(), false, false); err != nil {
		t.Fatalf("second enable: %v", err)
	}
	if len(runner.Calls) != callsAfterFirst {
		t.Error("expected second Enable without force to be a no-op")
	}
}

func TestManager_Disable_RestoresAndGoesInactive(t *testing.T) {
	runner := fakeAllGoodRunner()
	m := newTestManager(t, runner)

	if err := m.Enable(context.Background(), false, false); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := m.Disable(context.Background()); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if m.State() != StateInactive {
		t.Errorf("State() = %v, want INACTIVE", m.State())
	}
}

func TestManager_Disable_IdempotentWhenAlreadyInactive(t *testing.T) {
	m := newTestManager(t, fakeAllGoodRunner())

	if err := m.Disable(context.Background()); err != nil {
		t.Fatalf("expected no-op disable to succeed: %v", err)
	}
}

func TestManager_Enable_VerifyFailureRestoresAndReturnsError(t *testing.T) {
	runner := fakeAllGoodRunner()
	runner.ByCommand["iptables -L -n"] = platform.FakeResponse{
		Stdout: []byte("Chain INPUT (policy ACCEPT)\n"),
	}
	m := newTestManager(t, runner)

	err := m.Enable(context.Background(), false, false)
	if err == nil {
		t.Fatal("expected error when Verify reports non-DROP policy")
	}
	if m.State() != StateInactive {
		t.Errorf("State() = %v, want INACTIVE after failed verify", m.State())
	}
}
