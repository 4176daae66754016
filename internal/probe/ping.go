// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// PingFunc is the pingable used by PingReachable; a package variable so
// tests can swap in a fake without touching the network, mirroring the
// monitor loop's own ping hook.
var PingFunc = func(host string, timeout time.Duration) (time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, errPacketLoss
	}
	return stats.AvgRtt, nil
}

var errPacketLoss = pingError("packet loss")

type pingError string

func (e pingError) Error() string { return string(e) }

// PingReachable is a cheap, supplementary ICMP liveness check: the monitor
// loop calls this before the heavier PublicIP/DNSLeakProbe round-trip, and
// skips them entirely when the tunnel's own address isn't even answering.
func PingReachable(ctx context.Context, host string, timeout time.Duration) bool {
	type result struct {
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		_, err := PingFunc(host, timeout)
		done <- result{ok: err == nil}
	}()

	select {
	case r := <-done:
		return r.ok
	case <-ctx.Done():
		return false
	}
}
