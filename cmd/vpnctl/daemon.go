// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/outpost-dev/vpnctl/internal/install"
	"github.com/outpost-dev/vpnctl/internal/selector"
	"github.com/outpost-dev/vpnctl/internal/vpn"
)

var (
	daemonServerID   string
	daemonNoKillSwitch bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the controller in the foreground",
	Long: `daemon owns the single *vpn.Controller for this host: it optionally
connects to a server at startup, runs the monitor loop and metrics
collector, and bridges SIGTERM/SIGINT/SIGHUP to the controller. It is what
"vpnctl connect" execs into as a detached child; running it directly keeps
the process attached to the terminal.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonServerID, "server", "", "server ID to connect to at startup")
	daemonCmd.Flags().BoolVar(&daemonNoKillSwitch, "no-kill-switch", false, "start connected without enabling the kill switch")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp(configFile)
	if err != nil {
		return err
	}
	logger := a.logger.WithComponent("daemon")

	if err := os.MkdirAll(install.GetRunDir(), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := writePIDFile(); err != nil {
		return err
	}
	defer os.Remove(pidFilePath())

	go a.collector.Start(a.controller)
	defer a.collector.Stop()

	a.controller.OnStateChange(func(old, new vpn.State, message string) {
		logger.Info("state change", "old", old.String(), "new", new.String(), "message", message)
		writeStatusSnapshot(a.controller)
	})
	a.controller.OnIPChange(func(ip string) {
		logger.Info("public IP changed", "ip", ip)
	})
	a.controller.OnError(func(err error) {
		logger.WithError(err).Error("controller error")
	})

	if daemonServerID != "" {
		server := findServer(a.sel, daemonServerID)
		if server == nil {
			return fmt.Errorf("server %q not found in inventory", daemonServerID)
		}
		killSwitch := a.cfg.KillSwitchEnabled && !daemonNoKillSwitch
		if err := a.controller.Connect(context.Background(), server, killSwitch, a.cfg.DNSServers); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	writeStatusSnapshot(a.controller)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			handleRotateSignal(a.controller)
			writeStatusSnapshot(a.controller)
		default:
			logger.Info("received shutdown signal, emergency-disconnecting", "signal", sig.String())
			a.controller.EmergencyDisconnect()
			writeStatusSnapshot(a.controller)
			return nil
		}
	}
	return nil
}

func findServer(sel *selector.Selector, id string) *vpn.VPNServer {
	for _, s := range sel.All() {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// rotateRequest is written by "vpnctl rotate" before it sends SIGHUP, since
// a signal alone can't carry the --location/--random arguments.
type rotateRequest struct {
	Location string `json:"location"`
	Random   bool   `json:"random"`
}

func handleRotateSignal(controller *vpn.Controller) {
	path := rotateRequestFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		_ = controller.RotateIP(context.Background(), "", true)
		return
	}
	defer os.Remove(path)

	var req rotateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = controller.RotateIP(context.Background(), "", true)
		return
	}
	_ = controller.RotateIP(context.Background(), req.Location, req.Random)
}

func writePIDFile() error {
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// statusSnapshot is the on-disk shape "vpnctl status" reads back, since
// there is no RPC channel between the one-shot CLI commands and the
// long-lived daemon.
type statusSnapshot struct {
	State            string    `json:"state"`
	Connected        bool      `json:"connected"`
	ServerID         string    `json:"server_id,omitempty"`
	ServerHostname   string    `json:"server_hostname,omitempty"`
	PublicIP         string    `json:"public_ip,omitempty"`
	Location         string    `json:"location,omitempty"`
	KillSwitchActive bool      `json:"kill_switch_active"`
	BytesSent        uint64    `json:"bytes_sent"`
	BytesReceived    uint64    `json:"bytes_received"`
	ConnectedSince   time.Time `json:"connected_since,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func writeStatusSnapshot(controller *vpn.Controller) {
	status := controller.GetStatus()
	snap := statusSnapshot{
		State:            status.State.String(),
		Connected:        status.Connected,
		KillSwitchActive: status.KillSwitchActive,
		BytesSent:        status.Statistics.BytesSent,
		BytesReceived:    status.Statistics.BytesReceived,
		UpdatedAt:        time.Now(),
	}
	if status.Server != nil {
		snap.ServerID = status.Server.ID()
		snap.ServerHostname = status.Server.Hostname()
	}
	snap.PublicIP = status.Statistics.PublicIP
	snap.Location = status.Statistics.Location
	if !status.Statistics.ConnectedSince.IsZero() {
		snap.ConnectedSince = status.Statistics.ConnectedSince
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(statusFilePath(), data, 0o644)
}
