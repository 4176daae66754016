// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package vpn

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	vpnconfig "github.com/outpost-dev/vpnctl/internal/config"
	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/killswitch"
	"github.com/outpost-dev/vpnctl/internal/logging"
	"github.com/outpost-dev/vpnctl/internal/probe"
	"github.com/outpost-dev/vpnctl/internal/selector"
	"github.com/outpost-dev/vpnctl/internal/supervisor"
)

// BackendStats is a point-in-time read of a tunnel backend's transfer
// counters, independent of internal/backend.Stats so this package never
// imports that one back (it imports *VPNServer from here).
type BackendStats struct {
	BytesSent     uint64
	BytesReceived uint64
	TunnelIP      string
}

// Backend is the contract a tunnel implementation (OpenVPN, WireGuard)
// satisfies. Defined locally, by duck typing, rather than imported from
// internal/backend: that package depends on *VPNServer, so importing it
// here would create a cycle.
type Backend interface {
	Connect(ctx context.Context, server *VPNServer) error
	Disconnect(ctx context.Context) error
	ForceDisconnect()
	IsUp() bool
	Stats() (BackendStats, error)
	SetDNSServers(servers []string)
}

// BackendFactory constructs the Backend appropriate for server's protocol.
// Supplied by the caller (cmd/) at Controller construction, so this
// package never needs to import internal/backend's concrete constructors.
type BackendFactory func(server *VPNServer) (Backend, error)

// downThreshold is the number of consecutive failed monitor ticks before
// the Controller treats the connection as lost.
const downThreshold = 3

var errMonitorExit = errors.New("vpn: monitor loop exiting, auto-reconnect disabled")

// StateChangeFunc is notified on every Controller state transition.
type StateChangeFunc func(old, new State, message string)

// IPChangeFunc is notified whenever the Controller observes a new public IP.
type IPChangeFunc func(newIP string)

// ErrorFunc is notified on any error the Controller can't return directly
// to a caller (monitor-loop failures, async reconnect attempts).
type ErrorFunc func(err error)

// Controller drives a single VPN session through its kill switch and
// tunnel backend: connect, disconnect, rotate to a different server,
// monitor for drops and leaks, and emergency-disconnect on demand.
//
// A connection mutex serializes Connect/Disconnect/RotateIP so only one
// state transition runs at a time. EmergencyDisconnect deliberately does
// not take that mutex — it must be able to act even if a transition is
// wedged on a hung backend call — so the fields it touches (state,
// backend reference, monitor-stop flag) are stored atomically instead of
// behind the mutex. See DESIGN.md for the reasoning.
type Controller struct {
	cfg            vpnconfig.Config
	backendFactory BackendFactory
	killSwitch     *killswitch.Manager
	sel            *selector.Selector
	supervisor     *supervisor.Supervisor
	publicIP       *probe.PublicIPProbe
	geo            *probe.GeoLocationProbe
	dnsLeak        *probe.DNSLeakProber
	metrics        metricsRecorder
	logger         *logging.Logger

	mu sync.Mutex // serializes Connect/Disconnect/RotateIP

	state atomic.Int32 // State, read lock-free via State()/GetStatus()/Snapshot()

	dataMu            sync.Mutex // guards server/stats/killSwitchEnabled only
	server            *VPNServer
	stats             ConnectionStats
	killSwitchEnabled bool

	backendHolder atomic.Value // holds backendBox

	monitorStopFlag atomic.Bool
	monitorStopCh   chan struct{} // written only while mu held
	monitorDoneCh   chan struct{} // written only while mu held

	cbMu           sync.Mutex
	stateChangeFns []StateChangeFunc
	ipChangeFns    []IPChangeFunc
	errorFns       []ErrorFunc
}

// metricsRecorder is the slice of *metrics.Collector the monitor loop
// drives directly; kept as a small local interface so this package
// doesn't have to import internal/metrics just to accept an optional
// collector.
type metricsRecorder interface {
	RecordReconnectAttempt()
	RecordLeakDetected()
}

type backendBox struct{ b Backend }

// NewController wires a Controller from its collaborators. killSwitch,
// sel, and sup may not be nil, and a nil logger falls back to
// logging.Default(); the probe collaborators and
// metrics recorder are optional (nil disables the behavior they back:
// no public-IP/geo refresh, no DNS-leak probing, no metrics recording).
func NewController(
	cfg vpnconfig.Config,
	backendFactory BackendFactory,
	killSwitch *killswitch.Manager,
	sel *selector.Selector,
	sup *supervisor.Supervisor,
	publicIP *probe.PublicIPProbe,
	geo *probe.GeoLocationProbe,
	dnsLeak *probe.DNSLeakProber,
	metricsCollector metricsRecorder,
	logger *logging.Logger,
) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Controller{
		cfg:            cfg,
		backendFactory: backendFactory,
		killSwitch:     killSwitch,
		sel:            sel,
		supervisor:     sup,
		publicIP:       publicIP,
		geo:            geo,
		dnsLeak:        dnsLeak,
		metrics:        metricsCollector,
		logger:         logger.WithComponent("vpn.controller"),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// OnStateChange registers fn to be called, synchronously and on the
// calling goroutine, on every state transition.
func (c *Controller) OnStateChange(fn StateChangeFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.stateChangeFns = append(c.stateChangeFns, fn)
}

// OnIPChange registers fn to be called whenever the Controller observes a
// new public IP for the active session.
func (c *Controller) OnIPChange(fn IPChangeFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.ipChangeFns = append(c.ipChangeFns, fn)
}

// OnError registers fn to be called on errors the Controller can't
// surface through a direct return (monitor-loop and reconnect failures).
func (c *Controller) OnError(fn ErrorFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.errorFns = append(c.errorFns, fn)
}

// State reports the current state without blocking on the connection
// mutex.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Connect brings up a tunnel to server. If enableKillSwitch is set, the
// kill switch is enabled before the backend dials; on any failure the
// kill switch (if it was enabled by this call) is disabled again and the
// Controller lands in ERROR.
func (c *Controller) Connect(ctx context.Context, server *VPNServer, enableKillSwitch bool, dns []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateConnecting, StateConnected:
		return vpnerrors.New(vpnerrors.KindConflict, "already connected or connecting")
	}

	c.logger.Info("connecting", "hostname", server.Hostname(), "location", server.Location())
	c.changeState(StateConnecting, "")

	if err := c.doConnect(ctx, server, enableKillSwitch, dns); err != nil {
		c.changeState(StateError, err.Error())
		c.notifyError(err)
		return err
	}

	c.changeState(StateConnected, "")
	c.notifyIPChange(c.snapshotStats().PublicIP)
	return nil
}

// doConnect performs kill-switch + backend setup for server. Callers hold
// c.mu and manage the surrounding state transition themselves: Connect
// wraps it in CONNECTING→{CONNECTED,ERROR}; RotateIP calls it directly so
// the Controller stays ROTATING for the duration of the swap.
func (c *Controller) doConnect(ctx context.Context, server *VPNServer, enableKillSwitch bool, dns []string) error {
	if enableKillSwitch {
		if err := c.killSwitch.Enable(ctx, false, false); err != nil {
			return vpnerrors.Wrap(err, vpnerrors.KindFirewallApplyFailed, "enable kill switch")
		}
	}

	backend, err := c.backendFactory(server)
	if err != nil {
		if enableKillSwitch {
			c.bestEffortDisableKillSwitch()
		}
		return err
	}

	effectiveDNS := dns
	if len(effectiveDNS) == 0 {
		effectiveDNS = c.cfg.DNSServers
	}
	if len(effectiveDNS) > 0 {
		backend.SetDNSServers(effectiveDNS)
	}

	// Published before Connect is called, not after: EmergencyDisconnect
	// reads the backend reference lock-free and must be able to reach a
	// backend that's still hung inside its own Connect call.
	c.setBackend(backend)

	if err := backend.Connect(ctx, server); err != nil {
		c.setBackend(nil)
		if enableKillSwitch {
			c.bestEffortDisableKillSwitch()
		}
		return vpnerrors.Wrap(err, vpnerrors.KindBackendStartFailed, "tunnel backend connect failed")
	}

	c.setSession(server, ConnectionStats{
		SessionID:      uuid.New().String(),
		ConnectedSince: time.Now(),
		ServerID:       server.ID(),
		DNSServers:     effectiveDNS,
	}, enableKillSwitch)

	c.refreshConnectionInfo(ctx)
	c.startMonitor()
	return nil
}

func (c *Controller) bestEffortDisableKillSwitch() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.killSwitch.Disable(ctx); err != nil {
		c.logger.Warn("failed to disable kill switch after failed connect", "error", err)
	}
}

// refreshConnectionInfo pulls fresh backend transfer counters and, if a
// public-IP probe is configured, the session's current public IP and
// geolocation. Best-effort: failures are logged, not returned.
func (c *Controller) refreshConnectionInfo(ctx context.Context) {
	if b := c.getBackend(); b != nil {
		if bs, err := b.Stats(); err == nil {
			c.updateStats(func(s *ConnectionStats) {
				s.BytesSent = bs.BytesSent
				s.BytesReceived = bs.BytesReceived
			})
		}
	}

	if c.publicIP == nil {
		return
	}
	ip, err := c.publicIP.PublicIP(ctx, false)
	if err != nil {
		c.logger.Warn("failed to refresh public ip", "error", err)
		return
	}

	location := ""
	if c.geo != nil {
		location = c.geo.GeoLocation(ctx, ip).Location
	}

	c.updateStats(func(s *ConnectionStats) {
		s.PublicIP = ip.String()
		if location != "" {
			s.Location = location
		}
	})
}

// Disconnect tears down the active session. If keepKillSwitch is set, the
// kill switch is left ACTIVE (e.g. the caller wants traffic blocked even
// while disconnected); otherwise it is disabled.
func (c *Controller) Disconnect(ctx context.Context, keepKillSwitch bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateDisconnected {
		return nil
	}

	c.changeState(StateDisconnecting, "")
	c.stopMonitor()

	if b := c.getBackend(); b != nil {
		if err := b.Disconnect(ctx); err != nil {
			c.logger.Warn("backend disconnect reported an error", "error", err)
		}
		c.setBackend(nil)
	}

	if !keepKillSwitch {
		if err := c.killSwitch.Disable(ctx); err != nil {
			c.changeState(StateError, err.Error())
			c.notifyError(err)
			return err
		}
	}

	c.clearSession()
	c.changeState(StateDisconnected, "")
	return nil
}

// RotateIP swaps the active session to a different server: by substring
// match against newLocation, uniformly at random if random is set, or
// otherwise the Selector's best-scoring alternative. If the new server
// fails to connect, RotateIP falls back to reconnecting the previous
// server before giving up.
func (c *Controller) RotateIP(ctx context.Context, newLocation string, random bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateConnected {
		return vpnerrors.New(vpnerrors.KindConflict, "cannot rotate: not connected")
	}

	c.changeState(StateRotating, "")

	oldServer, oldStats, killSwitchWasEnabled := c.snapshotSession()

	excludeID := ""
	if oldServer != nil {
		excludeID = oldServer.ID()
	}
	newServer := c.pickRotationTarget(newLocation, random, excludeID)
	if newServer == nil {
		err := vpnerrors.New(vpnerrors.KindNotFound, "no suitable server found for rotation")
		c.changeState(StateConnected, "")
		c.notifyError(err)
		return err
	}

	if killSwitchWasEnabled {
		if err := c.killSwitch.Disable(ctx); err != nil {
			c.logger.Warn("failed to disable kill switch before rotation", "error", err)
		}
	}
	c.stopMonitor()
	if b := c.getBackend(); b != nil {
		if err := b.Disconnect(ctx); err != nil {
			c.logger.Warn("backend disconnect during rotation reported an error", "error", err)
		}
		c.setBackend(nil)
	}

	if err := c.doConnect(ctx, newServer, killSwitchWasEnabled, oldStats.DNSServers); err != nil {
		c.logger.Warn("rotation failed, attempting to reconnect to previous server", "error", err)
		if oldServer == nil {
			c.changeState(StateError, err.Error())
			c.notifyError(err)
			return err
		}
		if reconnectErr := c.doConnect(ctx, oldServer, killSwitchWasEnabled, oldStats.DNSServers); reconnectErr != nil {
			c.changeState(StateError, reconnectErr.Error())
			c.notifyError(reconnectErr)
			return reconnectErr
		}
		c.changeState(StateConnected, "")
		c.notifyIPChange(c.snapshotStats().PublicIP)
		return err
	}

	c.changeState(StateConnected, "")
	c.notifyIPChange(c.snapshotStats().PublicIP)
	return nil
}

func (c *Controller) pickRotationTarget(newLocation string, random_ bool, excludeID string) *VPNServer {
	if c.sel == nil {
		return nil
	}
	switch {
	case random_:
		return randomFromExcluding(c.sel.All(), excludeID)
	case newLocation != "":
		matches := c.sel.Find(selector.Filter{LocationSubstring: newLocation})
		return randomFromExcluding(matches, excludeID)
	default:
		return c.sel.Best(excludeID)
	}
}

func randomFromExcluding(servers []*VPNServer, excludeID string) *VPNServer {
	var filtered []*VPNServer
	for _, s := range servers {
		if excludeID == "" || s.ID() != excludeID {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered[rand.Intn(len(filtered))]
}

// EmergencyDisconnect forces the tunnel and kill switch down immediately.
// Unlike Connect/Disconnect/RotateIP it does not take the connection
// mutex, so it can still act while one of those is wedged on a hung
// backend or firewall call.
func (c *Controller) EmergencyDisconnect() {
	c.logger.Error("emergency disconnect triggered", "critical", true)

	c.monitorStopFlag.Store(true)

	if b := c.getBackend(); b != nil {
		b.ForceDisconnect()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if c.killSwitch != nil {
		if err := c.killSwitch.Disable(ctx); err != nil {
			c.logger.Warn("failed to disable kill switch during emergency disconnect", "error", err)
		}
	}

	c.setBackend(nil)
	c.changeState(StateDisconnected, "emergency disconnect")
}

// GetStatus returns a value-copy snapshot of the current session. Safe to
// call from a state-change/error callback: it never takes the connection
// mutex, only the lightweight data mutex guarding server/stats.
func (c *Controller) GetStatus() Status {
	server, stats, _ := c.snapshotSession()
	state := c.State()

	status := Status{
		State:      state,
		Connected:  state == StateConnected,
		Server:     server,
		Statistics: stats,
	}
	if c.killSwitch != nil {
		status.KillSwitchActive = c.killSwitch.State() == killswitch.StateActive
	}
	if !stats.ConnectedSince.IsZero() {
		status.Uptime = stats.Duration()
	}
	return status
}

// Snapshot implements metrics.StatsSource.
func (c *Controller) Snapshot() (state int, bytesSent, bytesReceived uint64, killSwitchActive bool) {
	_, stats, _ := c.snapshotSession()
	active := c.killSwitch != nil && c.killSwitch.State() == killswitch.StateActive
	return int(c.State()), stats.BytesSent, stats.BytesReceived, active
}

// --- session data (guarded by dataMu, not mu) ---

func (c *Controller) setSession(server *VPNServer, stats ConnectionStats, killSwitchEnabled bool) {
	c.dataMu.Lock()
	c.server = server
	c.stats = stats
	c.killSwitchEnabled = killSwitchEnabled
	c.dataMu.Unlock()
}

func (c *Controller) clearSession() {
	c.dataMu.Lock()
	c.server = nil
	c.stats.Reset()
	c.killSwitchEnabled = false
	c.dataMu.Unlock()
}

func (c *Controller) updateStats(fn func(*ConnectionStats)) {
	c.dataMu.Lock()
	fn(&c.stats)
	c.dataMu.Unlock()
}

func (c *Controller) snapshotStats() ConnectionStats {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return c.stats
}

func (c *Controller) snapshotSession() (*VPNServer, ConnectionStats, bool) {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return c.server, c.stats, c.killSwitchEnabled
}

// --- backend reference (atomic, so EmergencyDisconnect can read it without mu) ---

func (c *Controller) setBackend(b Backend) {
	c.backendHolder.Store(backendBox{b})
}

func (c *Controller) getBackend() Backend {
	v := c.backendHolder.Load()
	if v == nil {
		return nil
	}
	return v.(backendBox).b
}

// --- state transitions ---

func (c *Controller) changeState(new State, message string) {
	old := State(c.state.Swap(int32(new)))
	if old == new {
		return
	}
	c.logger.Debug("state change", "from", old.String(), "to", new.String(), "message", message)
	c.notifyStateChange(old, new, message)
}

// --- callback dispatch, each recover()-wrapped so a panicking callback
// can't bring down the Controller ---

func (c *Controller) notifyStateChange(old, new State, message string) {
	c.cbMu.Lock()
	fns := append([]StateChangeFunc(nil), c.stateChangeFns...)
	c.cbMu.Unlock()
	for _, fn := range fns {
		fn := fn
		c.safeCall(func() { fn(old, new, message) })
	}
}

func (c *Controller) notifyIPChange(ip string) {
	if ip == "" {
		return
	}
	c.cbMu.Lock()
	fns := append([]IPChangeFunc(nil), c.ipChangeFns...)
	c.cbMu.Unlock()
	for _, fn := range fns {
		fn := fn
		c.safeCall(func() { fn(ip) })
	}
}

func (c *Controller) notifyError(err error) {
	c.cbMu.Lock()
	fns := append([]ErrorFunc(nil), c.errorFns...)
	c.cbMu.Unlock()
	for _, fn := range fns {
		fn := fn
		c.safeCall(func() { fn(err) })
	}
}

func (c *Controller) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked", "panic", r)
		}
	}()
	fn()
}

// --- monitor loop ---

func (c *Controller) startMonitor() {
	c.monitorStopFlag.Store(false)
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	c.monitorStopCh = stopCh
	c.monitorDoneCh = doneCh
	go c.monitorLoop(stopCh, doneCh)
}

func (c *Controller) stopMonitor() {
	if c.monitorStopCh == nil {
		return
	}
	close(c.monitorStopCh)
	select {
	case <-c.monitorDoneCh:
	case <-time.After(5 * time.Second):
	}
	c.monitorStopCh = nil
	c.monitorDoneCh = nil
}

func (c *Controller) checkInterval() time.Duration {
	if c.cfg.CheckIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.cfg.CheckIntervalSeconds) * time.Second
}

func (c *Controller) leakConfirmationProbes() int {
	if c.cfg.LeakConfirmationProbes <= 0 {
		return 2
	}
	return c.cfg.LeakConfirmationProbes
}

// monitorLoop polls connectivity, leak exposure, and backend liveness on
// checkInterval() until stopCh is closed, the emergency-disconnect flag is
// set, or it gives up on a lost connection with auto-reconnect disabled.
func (c *Controller) monitorLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(c.checkInterval())
	defer ticker.Stop()

	var consecutiveDown, consecutiveIPMismatch, consecutiveDNSLeak int

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		if c.monitorStopFlag.Load() {
			return
		}

		if err := c.monitorTick(&consecutiveDown, &consecutiveIPMismatch, &consecutiveDNSLeak); err != nil {
			if errors.Is(err, errMonitorExit) {
				return
			}
			c.logger.Error("monitor tick failed", "error", err)
			time.Sleep(5 * time.Second)
		}
	}
}

func (c *Controller) monitorTick(consecutiveDown, consecutiveIPMismatch, consecutiveDNSLeak *int) error {
	backend := c.getBackend()
	if backend == nil {
		return nil
	}

	if !c.connectivityUp(backend) {
		*consecutiveDown++
		c.logger.Warn("connection check failed", "consecutive", *consecutiveDown)
		if *consecutiveDown >= downThreshold {
			return c.handleConnectionLost()
		}
		return nil
	}
	*consecutiveDown = 0

	if !c.cfg.CheckForLeaks {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c.refreshConnectionInfo(ctx)
	vpnIP := c.snapshotStats().PublicIP
	dnsServers := c.snapshotStats().DNSServers

	if c.ipMismatch(ctx, vpnIP) {
		*consecutiveIPMismatch++
	} else {
		*consecutiveIPMismatch = 0
	}

	if c.dnsLeaked(ctx, dnsServers) {
		*consecutiveDNSLeak++
	} else {
		*consecutiveDNSLeak = 0
	}

	threshold := c.leakConfirmationProbes()
	if *consecutiveIPMismatch >= threshold || *consecutiveDNSLeak >= threshold {
		*consecutiveIPMismatch = 0
		*consecutiveDNSLeak = 0
		c.handleLeak()
	}

	return nil
}

// connectivityUp runs the cheap ICMP pre-check against the tunnel's
// reported IP (when the backend exposes one) before consulting the
// backend's own up/down report, skipping straight to IsUp() when no
// tunnel IP is available to ping.
func (c *Controller) connectivityUp(backend Backend) bool {
	stats, err := backend.Stats()
	if err == nil && stats.TunnelIP != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		reachable := probe.PingReachable(ctx, stats.TunnelIP, 3*time.Second)
		cancel()
		if !reachable {
			return false
		}
	}
	return backend.IsUp()
}

// ipMismatch reports whether a freshly-probed public IP disagrees with
// vpnIP (the session's last recorded public IP). A probe failure or an
// unrecorded vpnIP is never treated as a mismatch.
func (c *Controller) ipMismatch(ctx context.Context, vpnIP string) bool {
	if c.publicIP == nil || vpnIP == "" {
		return false
	}
	current, err := c.publicIP.PublicIP(ctx, true)
	if err != nil {
		return false
	}
	return current.String() != vpnIP
}

func (c *Controller) dnsLeaked(ctx context.Context, expectedDNS []string) bool {
	if c.dnsLeak == nil {
		return false
	}
	leaks, err := c.dnsLeak.DNSLeakProbe(ctx, expectedDNS)
	return err == nil && len(leaks) > 0
}

func (c *Controller) handleConnectionLost() error {
	c.logger.Error("connection lost, attempting reconnect")

	if !c.cfg.AutoReconnect {
		c.mu.Lock()
		c.changeState(StateError, "connection lost")
		c.mu.Unlock()
		c.notifyError(vpnerrors.New(vpnerrors.KindBackendTimeout, "connection lost"))
		return errMonitorExit
	}

	c.attemptReconnect()
	return nil
}

func (c *Controller) handleLeak() {
	c.logger.Error("leak detected, re-enforcing kill switch", "critical", true)

	if c.metrics != nil {
		c.metrics.RecordLeakDetected()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if c.killSwitch != nil {
		if err := c.killSwitch.Enable(ctx, false, true); err != nil {
			c.logger.Error("failed to force-reenable kill switch after leak", "error", err)
		}
	}

	c.notifyError(vpnerrors.New(vpnerrors.KindUnavailable, "leak detected: traffic observed outside the tunnel"))
	c.attemptReconnect()
}

// attemptReconnect retries up to cfg.MaxReconnectAttempts times, backing
// off between attempts, picking a fresh best-scoring server each time.
// Giving up (either exhausting attempts or supervisor.ShouldStopReconnecting
// reporting too many recent failures) ends in EmergencyDisconnect.
func (c *Controller) attemptReconnect() {
	if c.supervisor != nil && c.supervisor.ShouldStopReconnecting() {
		c.logger.Error("too many failed reconnect attempts, giving up")
		c.EmergencyDisconnect()
		return
	}

	maxAttempts := c.cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		c.logger.Info("reconnection attempt", "attempt", attempt+1, "of", maxAttempts)
		if c.metrics != nil {
			c.metrics.RecordReconnectAttempt()
		}

		if c.reconnectOnce() {
			c.logger.Info("reconnected successfully")
			if c.supervisor != nil {
				_ = c.supervisor.RecordAttempt(false)
			}
			c.mu.Lock()
			c.changeState(StateConnected, "")
			c.mu.Unlock()
			c.notifyIPChange(c.snapshotStats().PublicIP)
			return
		}

		if c.supervisor != nil {
			_ = c.supervisor.RecordAttempt(true)
		}
		time.Sleep(backoffDuration(attempt))
	}

	c.logger.Error("all reconnection attempts failed")
	c.EmergencyDisconnect()
}

// reconnectOnce picks a fresh server and swaps the backend, holding mu for
// the duration. Reports whether the attempt succeeded.
func (c *Controller) reconnectOnce() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	server, stats, killSwitchWasEnabled := c.snapshotSession()
	excludeID := ""
	if server != nil {
		excludeID = server.ID()
	}

	var newServer *VPNServer
	if c.sel != nil {
		newServer = c.sel.Best(excludeID)
	}
	if newServer == nil {
		newServer = server
	}
	if newServer == nil {
		return false
	}

	if b := c.getBackend(); b != nil {
		b.ForceDisconnect()
		c.setBackend(nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := c.doConnect(ctx, newServer, killSwitchWasEnabled, stats.DNSServers)
	return err == nil
}

func backoffDuration(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
