// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics holds the Prometheus registry the VPN controller updates
// on every state transition and stats refresh. Nothing here starts an HTTP
// listener; Registry.Gather is exported for a collaborator to expose.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the controller's Prometheus collectors.
type Registry struct {
	registry *prometheus.Registry

	State               prometheus.Gauge
	BytesSentTotal       prometheus.Counter
	BytesReceivedTotal   prometheus.Counter
	KillSwitchActive     prometheus.Gauge
	ReconnectAttempts    prometheus.Counter
	LeakDetectedTotal    prometheus.Counter
}

var global = New()

// Get returns the package-level Registry shared by all components.
func Get() *Registry { return global }

// New constructs a Registry with a fresh prometheus.Registry, so multiple
// controllers (e.g. in tests) don't collide on the default global
// registerer.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vpnctl_state",
			Help: "Current VPN controller state as an enum (0=DISCONNECTED .. 5=ERROR).",
		}),
		BytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnctl_bytes_sent_total",
			Help: "Total bytes sent over the active tunnel session.",
		}),
		BytesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnctl_bytes_received_total",
			Help: "Total bytes received over the active tunnel session.",
		}),
		KillSwitchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vpnctl_killswitch_active",
			Help: "1 if the kill-switch manager is currently active, 0 otherwise.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnctl_reconnect_attempts_total",
			Help: "Total reconnect attempts made by the monitor loop.",
		}),
		LeakDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnctl_leak_detected_total",
			Help: "Total number of confirmed DNS/IP leaks detected during monitoring.",
		}),
	}

	reg.MustRegister(
		r.State,
		r.BytesSentTotal,
		r.BytesReceivedTotal,
		r.KillSwitchActive,
		r.ReconnectAttempts,
		r.LeakDetectedTotal,
	)

	return r
}

// Gather exposes the underlying prometheus.Registry's Gather method for an
// HTTP exporter collaborator to call.
func (r *Registry) Gather() ([]*prometheus.MetricFamily, error) {
	return r.registry.Gather()
}
