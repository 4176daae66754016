// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package backend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/logging"
	"github.com/outpost-dev/vpnctl/internal/vpn"
)

const (
	connectTimeout    = 30 * time.Second
	disconnectGrace   = 10 * time.Second
	openvpnConfigPerm = 0o600
)

var (
	readBytesRe  = regexp.MustCompile(`(?i)TCP/UDP read bytes,(\d+)`)
	writeBytesRe = regexp.MustCompile(`(?i)TCP/UDP write bytes,(\d+)`)
	tunnelIPRe   = regexp.MustCompile(`(?i)ifconfig.*?(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
)

const initCompleteMarker = "Initialization Sequence Completed"

// OpenVPNBackend launches and supervises an openvpn child process.
type OpenVPNBackend struct {
	binary string
	logger *logging.Logger

	username, password string

	mu         sync.Mutex
	cmd        *exec.Cmd
	configFile string
	authFile   string
	dnsServers []string

	monitorWG sync.WaitGroup
	upCh      chan struct{}
	upOnce    sync.Once

	statsMu sync.Mutex
	stats   Stats
	isUp    bool
}

// NewOpenVPNBackend constructs a backend using the named openvpn binary
// (typically "openvpn", resolved via PATH).
func NewOpenVPNBackend(binary string, logger *logging.Logger) *OpenVPNBackend {
	if binary == "" {
		binary = "openvpn"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenVPNBackend{binary: binary, logger: logger.WithComponent("backend.openvpn")}
}

// SetCredentials configures username/password written to an --auth-user-pass
// file ahead of the next Connect. OpenVPN has no credential field on
// VPNServer itself, so this is a backend-specific setter rather than part
// of the common Backend interface.
func (b *OpenVPNBackend) SetCredentials(username, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.username, b.password = username, password
}

// SetDNSServers implements Backend. OpenVPN DNS is baked into the config
// file at Connect time, so this only takes effect on the next Connect.
func (b *OpenVPNBackend) SetDNSServers(servers []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dnsServers = append([]string(nil), servers...)
}

// Connect starts openvpn and blocks until the init-complete marker is seen,
// the process exits, or a 30-second budget elapses.
func (b *OpenVPNBackend) Connect(ctx context.Context, server *vpn.VPNServer) error {
	b.mu.Lock()
	if b.cmd != nil {
		b.mu.Unlock()
		return vpnerrors.New(vpnerrors.KindBackendStartFailed, "openvpn backend already connected")
	}

	configFile, err := b.writeConfigFile(server)
	if err != nil {
		b.mu.Unlock()
		return vpnerrors.Wrap(err, vpnerrors.KindBackendStartFailed, "failed to write openvpn config")
	}
	b.configFile = configFile

	var authFile string
	if b.username != "" && b.password != "" {
		authFile, err = b.writeAuthFile()
		if err != nil {
			b.cleanupFiles()
			b.mu.Unlock()
			return vpnerrors.Wrap(err, vpnerrors.KindBackendStartFailed, "failed to write openvpn auth file")
		}
		b.authFile = authFile
	}

	args := []string{
		"--config", configFile,
		"--auth-nocache",
		"--connect-retry", "5",
		"--connect-retry-max", "3",
		"--explicit-exit-notify", "2",
	}
	if authFile != "" {
		args = append(args, "--auth-user-pass", authFile)
	}

	cmd := exec.Command(b.binary, args...)
	pr, pw, err := os.Pipe()
	if err != nil {
		b.cleanupFiles()
		b.mu.Unlock()
		return vpnerrors.Wrap(err, vpnerrors.KindBackendStartFailed, "failed to create monitor pipe")
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		b.cleanupFiles()
		b.mu.Unlock()
		return vpnerrors.Wrap(err, vpnerrors.KindBackendStartFailed, "failed to start openvpn")
	}
	pw.Close()

	b.cmd = cmd
	b.upCh = make(chan struct{})
	b.upOnce = sync.Once{}
	b.mu.Unlock()

	b.monitorWG.Add(1)
	go b.monitor(pr)

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-b.upCh:
		return nil
	case err := <-exitCh:
		b.monitorWG.Wait()
		b.mu.Lock()
		b.cmd = nil
		b.cleanupFiles()
		b.mu.Unlock()
		return vpnerrors.Errorf(vpnerrors.KindBackendStartFailed, "openvpn exited before connecting: %v", err)
	case <-timer.C:
		b.ForceDisconnect()
		return vpnerrors.New(vpnerrors.KindBackendTimeout, "openvpn did not reach the connected state within 30s")
	case <-ctx.Done():
		b.ForceDisconnect()
		return vpnerrors.Wrap(ctx.Err(), vpnerrors.KindBackendTimeout, "connect canceled")
	}
}

func (b *OpenVPNBackend) monitor(r *os.File) {
	defer b.monitorWG.Done()
	defer r.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		b.parseLine(scanner.Text())
	}
}

func (b *OpenVPNBackend) parseLine(line string) {
	if strings.Contains(line, initCompleteMarker) {
		b.statsMu.Lock()
		b.isUp = true
		b.statsMu.Unlock()
		b.upOnce.Do(func() { close(b.upCh) })
		b.logger.Info("openvpn connection established")
		return
	}

	upper := strings.ToUpper(line)
	if strings.Contains(upper, "AUTH_FAILED") || strings.Contains(upper, "ERROR") {
		b.logger.Warn("openvpn reported an error", "line", line)
	}

	if m := readBytesRe.FindStringSubmatch(line); m != nil {
		if n, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			b.statsMu.Lock()
			b.stats.BytesReceived = n
			b.statsMu.Unlock()
		}
	}
	if m := writeBytesRe.FindStringSubmatch(line); m != nil {
		if n, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			b.statsMu.Lock()
			b.stats.BytesSent = n
			b.statsMu.Unlock()
		}
	}
	if m := tunnelIPRe.FindStringSubmatch(line); m != nil {
		b.statsMu.Lock()
		b.stats.TunnelIP = m[1]
		b.statsMu.Unlock()
	}
}

// Disconnect sends SIGTERM, waits up to 10s, then escalates to SIGKILL.
func (b *OpenVPNBackend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()
	if cmd == nil {
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	doneCh := make(chan struct{})
	go func() {
		b.monitorWG.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(disconnectGrace):
		_ = cmd.Process.Kill()
		<-doneCh
	}

	b.mu.Lock()
	b.cmd = nil
	b.isUp = false
	b.cleanupFiles()
	b.mu.Unlock()
	return nil
}

// ForceDisconnect skips the grace period and kills the process immediately.
func (b *OpenVPNBackend) ForceDisconnect() {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Kill()
	b.monitorWG.Wait()

	b.mu.Lock()
	b.cmd = nil
	b.isUp = false
	b.cleanupFiles()
	b.mu.Unlock()
}

// IsUp implements Backend.
func (b *OpenVPNBackend) IsUp() bool {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.isUp
}

// Stats implements Backend.
func (b *OpenVPNBackend) Stats() (Stats, error) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats, nil
}

func (b *OpenVPNBackend) writeConfigFile(server *vpn.VPNServer) (string, error) {
	f, err := os.CreateTemp("", "vpnctl-*.ovpn")
	if err != nil {
		return "", err
	}
	defer f.Close()

	dnsLines := ""
	for _, dns := range b.dnsServers {
		dnsLines += fmt.Sprintf("dhcp-option DNS %s\n", dns)
	}

	content := fmt.Sprintf(`client
dev tun
proto %s
remote %s %d
resolv-retry infinite
nobind
persist-key
persist-tun
remote-cert-tls server
cipher AES-256-GCM
auth SHA256
verb 3
mute 20
redirect-gateway def1
%s`, server.Protocol(), server.Hostname(), server.Port(), dnsLines)

	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := os.Chmod(f.Name(), openvpnConfigPerm); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (b *OpenVPNBackend) writeAuthFile() (string, error) {
	f, err := os.CreateTemp("", "vpnctl-auth-*")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n%s\n", b.username, b.password); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := os.Chmod(f.Name(), openvpnConfigPerm); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// cleanupFiles removes the temp config/auth files. Caller must hold b.mu.
func (b *OpenVPNBackend) cleanupFiles() {
	if b.configFile != "" {
		os.Remove(b.configFile)
		b.configFile = ""
	}
	if b.authFile != "" {
		os.Remove(b.authFile)
		b.authFile = ""
	}
}
