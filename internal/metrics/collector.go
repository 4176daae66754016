// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"sync"
	"time"

	"github.com/outpost-dev/vpnctl/internal/logging"
)

// Collector updates Registry gauges/counters on a timer and on direct
// event notification from the VPN Controller and Kill-Switch Manager.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	interval time.Duration
	stopCh   chan struct{}

	mu           sync.RWMutex
	lastUpdate   time.Time
	prevSent     uint64
	prevReceived uint64
}

// StatsSource is polled by Collector.Start on each tick for values that
// don't have a natural "event" to hang an update off of.
type StatsSource interface {
	Snapshot() (state int, bytesSent, bytesReceived uint64, killSwitchActive bool)
}

// NewCollector creates a Collector bound to registry.
func NewCollector(registry *Registry, logger *logging.Logger, interval time.Duration) *Collector {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Collector{
		registry: registry,
		logger:   logger.WithComponent("metrics"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start polls source every interval until Stop is called, updating the
// state/bytes/kill-switch gauges. Event counters (reconnects, leaks) are
// updated directly by their callers rather than on this ticker.
func (c *Collector) Start(source StatsSource) {
	c.logger.Info("starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.poll(source)
		case <-c.stopCh:
			c.logger.Info("stopping metrics collector")
			return
		}
	}
}

// Stop ends the collection loop started by Start.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) poll(source StatsSource) {
	if source == nil {
		return
	}

	state, sent, received, active := source.Snapshot()

	c.registry.State.Set(float64(state))
	if active {
		c.registry.KillSwitchActive.Set(1)
	} else {
		c.registry.KillSwitchActive.Set(0)
	}

	c.mu.Lock()
	// ConnectionStats.BytesSent/BytesReceived are absolute running totals
	// for the session; the Prometheus counter only grows by deltas, and
	// resets to zero (a new session) are treated as the new baseline
	// rather than a negative delta.
	if sent >= c.prevSent {
		c.registry.BytesSentTotal.Add(float64(sent - c.prevSent))
	}
	if received >= c.prevReceived {
		c.registry.BytesReceivedTotal.Add(float64(received - c.prevReceived))
	}
	c.prevSent = sent
	c.prevReceived = received
	c.lastUpdate = time.Now()
	c.mu.Unlock()
}

// RecordReconnectAttempt increments the reconnect-attempt counter. Called
// by the monitor loop each time it tries to re-establish the tunnel.
func (c *Collector) RecordReconnectAttempt() {
	c.registry.ReconnectAttempts.Inc()
}

// RecordLeakDetected increments the confirmed-leak counter. Called once
// the probe's double-mismatch confirmation threshold is met.
func (c *Collector) RecordLeakDetected() {
	c.registry.LeakDetectedTotal.Inc()
}

// GetLastUpdate returns the timestamp of the most recent poll.
func (c *Collector) GetLastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
