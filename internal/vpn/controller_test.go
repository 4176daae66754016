// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package vpn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vpnconfig "github.com/outpost-dev/vpnctl/internal/config"
	"github.com/outpost-dev/vpnctl/internal/firewall"
	"github.com/outpost-dev/vpnctl/internal/killswitch"
	"github.com/outpost-dev/vpnctl/internal/platform"
	"github.com/outpost-dev/vpnctl/internal/selector"
	"github.com/outpost-dev/vpnctl/internal/supervisor"
)

// fakeBackend is a minimal in-memory stand-in for a tunnel backend. It
// never shells out, so tests exercise the Controller's own sequencing
// rather than a real OpenVPN/WireGuard process.
type fakeBackend struct {
	mu          sync.Mutex
	up          bool
	connectErr  error
	connectHang chan struct{} // if non-nil, Connect blocks until closed
	dns         []string

	connectCalls    int
	disconnectCalls int
	forceCalls      int
}

func (b *fakeBackend) Connect(ctx context.Context, server *VPNServer) error {
	b.mu.Lock()
	b.connectCalls++
	hang := b.connectHang
	err := b.connectErr
	b.mu.Unlock()

	if hang != nil {
		select {
		case <-hang:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.up = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectCalls++
	b.up = false
	return nil
}

func (b *fakeBackend) ForceDisconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forceCalls++
	b.up = false
}

func (b *fakeBackend) IsUp() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.up
}

func (b *fakeBackend) Stats() (BackendStats, error) {
	return BackendStats{BytesSent: 100, BytesReceived: 200}, nil
}

func (b *fakeBackend) SetDNSServers(servers []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dns = servers
}

func testServer(id string) *VPNServer {
	return NewVPNServer(id, id+".example.net", "198.51.100.10", ProtocolUDP, 1194, WithScore(90))
}

// newTestKillSwitch builds a real killswitch.Manager over a fake command
// runner, so tests exercise the same Enable/Disable sequencing the
// Controller depends on rather than a mocked interface.
func newTestKillSwitch(t *testing.T) *killswitch.Manager {
	t.Helper()
	runner := &platform.FakeCommandRunner{}
	driver := firewall.NewDriver(runner, nil)
	probe := platform.NewProbe(runner)
	return killswitch.NewManager(driver, probe, nil)
}

func newTestController(t *testing.T, factory BackendFactory) (*Controller, *supervisor.Supervisor) {
	t.Helper()
	sup := supervisor.New(t.TempDir(), supervisor.DefaultConfig())
	sel := selector.New([]*VPNServer{testServer("fallback")})
	cfg := vpnconfig.Default()
	cfg.CheckIntervalSeconds = 1
	cfg.CheckForLeaks = false
	cfg.MaxReconnectAttempts = 2

	c := NewController(cfg, factory, newTestKillSwitch(t), sel, sup, nil, nil, nil, nil, nil)
	return c, sup
}

// TestController_ConnectDisconnect_HappyPath covers S1: connect succeeds,
// status reflects CONNECTED, disconnect tears everything back down.
func TestController_ConnectDisconnect_HappyPath(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestController(t, func(*VPNServer) (Backend, error) { return backend, nil })

	var transitions []State
	c.OnStateChange(func(old, new State, msg string) { transitions = append(transitions, new) })

	err := c.Connect(context.Background(), testServer("s1"), true, nil)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, c.State())

	status := c.GetStatus()
	assert.True(t, status.Connected)
	assert.Equal(t, "s1", status.Server.ID())
	assert.True(t, status.KillSwitchActive)

	require.NoError(t, c.Disconnect(context.Background(), false))
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.GetStatus().KillSwitchActive)

	assert.Contains(t, transitions, StateConnecting)
	assert.Contains(t, transitions, StateConnected)
	assert.Contains(t, transitions, StateDisconnecting)
	assert.Contains(t, transitions, StateDisconnected)
}

// TestController_Connect_BackendFailureDisablesKillSwitch covers the
// failure branch of S1: a backend that refuses to connect leaves the
// Controller in ERROR with the kill switch rolled back off.
func TestController_Connect_BackendFailureDisablesKillSwitch(t *testing.T) {
	backend := &fakeBackend{connectErr: errors.New("auth rejected")}
	c, _ := newTestController(t, func(*VPNServer) (Backend, error) { return backend, nil })

	var gotErr error
	c.OnError(func(err error) { gotErr = err })

	err := c.Connect(context.Background(), testServer("s1"), true, nil)
	require.Error(t, err)
	assert.Equal(t, StateError, c.State())
	assert.Error(t, gotErr)
	assert.False(t, c.GetStatus().KillSwitchActive)
}

// TestController_Connect_RejectsWhenAlreadyConnected covers the
// already-connected guard.
func TestController_Connect_RejectsWhenAlreadyConnected(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestController(t, func(*VPNServer) (Backend, error) { return backend, nil })

	require.NoError(t, c.Connect(context.Background(), testServer("s1"), false, nil))
	err := c.Connect(context.Background(), testServer("s2"), false, nil)
	assert.Error(t, err)
}

// TestController_RotateIP_SwapsServer covers S5's happy path: rotation
// picks a new server and the session reflects it.
func TestController_RotateIP_SwapsServer(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestController(t, func(*VPNServer) (Backend, error) { return backend, nil })
	c.sel = selector.New([]*VPNServer{testServer("s1"), testServer("s2")})

	require.NoError(t, c.Connect(context.Background(), testServer("s1"), false, nil))

	err := c.RotateIP(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "s2", c.GetStatus().Server.ID())
	assert.Equal(t, 2, backend.connectCalls)
}

// TestController_RotateIP_FallsBackOnFailure covers S5: when the new
// server fails to connect, RotateIP reconnects the previous server and
// still reports the rotation's own error.
func TestController_RotateIP_FallsBackOnFailure(t *testing.T) {
	good := &fakeBackend{}
	bad := &fakeBackend{connectErr: errors.New("dial timeout")}

	calls := 0
	factory := func(s *VPNServer) (Backend, error) {
		calls++
		if s.ID() == "s1" {
			return good, nil
		}
		return bad, nil
	}

	c, _ := newTestController(t, factory)
	c.sel = selector.New([]*VPNServer{testServer("s1"), testServer("s2")})

	require.NoError(t, c.Connect(context.Background(), testServer("s1"), false, nil))

	err := c.RotateIP(context.Background(), "", false)
	assert.Error(t, err)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "s1", c.GetStatus().Server.ID())
}

// TestController_RotateIP_RejectsWhenNotConnected covers the
// not-connected guard.
func TestController_RotateIP_RejectsWhenNotConnected(t *testing.T) {
	c, _ := newTestController(t, func(*VPNServer) (Backend, error) { return &fakeBackend{}, nil })
	err := c.RotateIP(context.Background(), "", true)
	assert.Error(t, err)
}

// TestController_EmergencyDisconnect_WhileWedged covers S6: a Connect
// call hung inside the backend (holding the connection mutex) must not
// prevent EmergencyDisconnect from forcing the tunnel and kill switch
// down and landing the Controller in DISCONNECTED within a second.
func TestController_EmergencyDisconnect_WhileWedged(t *testing.T) {
	hang := make(chan struct{})
	backend := &fakeBackend{connectHang: hang}
	c, _ := newTestController(t, func(*VPNServer) (Backend, error) { return backend, nil })

	go func() {
		_ = c.Connect(context.Background(), testServer("s1"), true, nil)
	}()

	// Give the goroutine a moment to enter Connect and grab the mutex.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.EmergencyDisconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("EmergencyDisconnect did not return within 1s while Connect was wedged")
	}

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, backend.forceCalls)

	close(hang) // release the wedged Connect so the goroutine can exit
}

// TestController_Snapshot_ImplementsStatsSource exercises the
// metrics.StatsSource contract.
func TestController_Snapshot_ImplementsStatsSource(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestController(t, func(*VPNServer) (Backend, error) { return backend, nil })

	require.NoError(t, c.Connect(context.Background(), testServer("s1"), false, nil))

	state, sent, received, active := c.Snapshot()
	assert.Equal(t, int(StateConnected), state)
	assert.Equal(t, uint64(100), sent)
	assert.Equal(t, uint64(200), received)
	assert.False(t, active)
}
