// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/outpost-dev/vpnctl/internal/backend"
	"github.com/outpost-dev/vpnctl/internal/brand"
	vpnconfig "github.com/outpost-dev/vpnctl/internal/config"
	"github.com/outpost-dev/vpnctl/internal/firewall"
	"github.com/outpost-dev/vpnctl/internal/install"
	"github.com/outpost-dev/vpnctl/internal/inventory"
	"github.com/outpost-dev/vpnctl/internal/killswitch"
	"github.com/outpost-dev/vpnctl/internal/logging"
	"github.com/outpost-dev/vpnctl/internal/metrics"
	"github.com/outpost-dev/vpnctl/internal/platform"
	"github.com/outpost-dev/vpnctl/internal/probe"
	"github.com/outpost-dev/vpnctl/internal/selector"
	"github.com/outpost-dev/vpnctl/internal/supervisor"
	"github.com/outpost-dev/vpnctl/internal/vpn"
)

// app bundles every collaborator a CLI command might need, assembled once
// per process invocation. One-shot commands (connect/disconnect/rotate/
// status) and the long-lived daemon command both start from newApp.
type app struct {
	cfg        vpnconfig.Config
	logger     *logging.Logger
	registry   *metrics.Registry
	collector  *metrics.Collector
	sel        *selector.Selector
	controller *vpn.Controller
}

// backendAdapter satisfies internal/vpn's locally declared Backend
// interface over a concrete internal/backend.Backend. The two interfaces
// have identical method sets, but Stats() returns distinct named struct
// types (backend.Stats vs vpn.BackendStats) that Go will not unify
// structurally, so a thin adapter is the only way to hand a real backend
// to vpn.NewController without internal/vpn importing internal/backend.
type backendAdapter struct {
	backend.Backend
}

func (a backendAdapter) Stats() (vpn.BackendStats, error) {
	s, err := a.Backend.Stats()
	return vpn.BackendStats{
		BytesSent:     s.BytesSent,
		BytesReceived: s.BytesReceived,
		TunnelIP:      s.TunnelIP,
	}, err
}

// backendFactory builds the tunnel backend appropriate for a server's
// protocol, wrapped in backendAdapter so it satisfies vpn.Backend.
func backendFactory(runner platform.CommandRunner, netlnk platform.Netlinker, logger *logging.Logger) vpn.BackendFactory {
	return func(server *vpn.VPNServer) (vpn.Backend, error) {
		switch server.Protocol() {
		case vpn.ProtocolWireGuard:
			return backendAdapter{backend.NewWireGuardBackend(runner, netlnk, logger)}, nil
		default:
			return backendAdapter{backend.NewOpenVPNBackend("openvpn", logger)}, nil
		}
	}
}

// newApp loads configuration and constructs every collaborator the
// Controller needs, including the server inventory and the metrics
// collector. It does not start the metrics collector or connect anything;
// callers decide that.
func newApp(configFile string) (*app, error) {
	if configFile == "" {
		configFile = install.ConfigFilePath()
	}
	cfg, err := vpnconfig.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logLevel := logging.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = logging.LevelDebug
	case "warn":
		logLevel = logging.LevelWarn
	case "error":
		logLevel = logging.LevelError
	}
	logFormat := logging.FormatJSON
	if cfg.LogFormat == "text" {
		logFormat = logging.FormatText
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = logLevel
	logCfg.Format = logFormat
	logger := logging.New(logCfg)

	runner := platform.RealCommandRunner{}
	netlnk := platform.RealNetlinker{}
	probeDriver := platform.NewProbe(runner)
	fwDriver := firewall.NewDriver(runner, logger)

	ksOpts := []killswitch.Option{killswitch.WithStrictResolvConfDNS(cfg.StrictResolvConfDNS)}
	ks := killswitch.NewManager(fwDriver, probeDriver, logger, ksOpts...)
	for _, dns := range cfg.DNSServers {
		ks.AddDNS(dns)
	}

	overlay, err := vpnconfig.LoadPolicyOverlay(install.PolicyFilePath())
	if err != nil {
		logger.WithError(err).Warn("policy overlay failed to load, ignoring")
	} else if len(overlay.ExtraVPNEndpoints) > 0 || len(overlay.ExtraDNSServers) > 0 || len(overlay.ExtraLANCIDRs) > 0 {
		endpoints := make([]firewall.VPNEndpoint, 0, len(overlay.ExtraVPNEndpoints))
		for _, e := range overlay.ExtraVPNEndpoints {
			endpoints = append(endpoints, firewall.VPNEndpoint{IP: e.IP, Protocol: e.Protocol, Port: e.Port})
		}
		ks.MergePolicyOverlay(overlay.ExtraDNSServers, overlay.ExtraLANCIDRs, endpoints, overlay.Strict)
	}

	servers, err := inventory.Load(install.InventoryFilePath())
	if err != nil {
		logger.WithError(err).Warn("no server inventory loaded, selector starts empty")
		servers = nil
	}
	sel := selector.New(servers)

	sup := supervisor.New(cfg.StateDir, supervisor.DefaultConfig())

	registry := metrics.New()
	collector := metrics.NewCollector(registry, logger, defaultMetricsInterval)

	publicIP := probe.NewPublicIPProbe()
	geo := probe.NewGeoLocationProbe(logger)
	dnsLeak := probe.NewDNSLeakProber(probeDriver, logger)

	factory := backendFactory(runner, netlnk, logger)

	controller := vpn.NewController(cfg, factory, ks, sel, sup, publicIP, geo, dnsLeak, collector, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		collector:  collector,
		sel:        sel,
		controller: controller,
	}, nil
}

const defaultMetricsInterval = 15 * time.Second

// pidFilePath, statusFilePath and rotateRequestFilePath live under
// install.GetRunDir(), named after brand.LowerName (e.g. brand.LowerName+".pid").
func pidFilePath() string {
	return filepath.Join(install.GetRunDir(), brand.LowerName+".pid")
}

func logFilePath() string {
	return filepath.Join(install.GetLogDir(), brand.LowerName+".log")
}

func statusFilePath() string {
	return filepath.Join(install.GetRunDir(), brand.LowerName+".status.json")
}

func rotateRequestFilePath() string {
	return filepath.Join(install.GetRunDir(), brand.LowerName+".rotate-request.json")
}
