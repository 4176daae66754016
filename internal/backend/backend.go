// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package backend wraps the two tunnel implementations the kill switch
// protects: OpenVPN and WireGuard. Both expose the same uniform interface
// so the VPN Controller never branches on protocol.
package backend

import (
	"context"

	"github.com/outpost-dev/vpnctl/internal/vpn"
)

// Stats is a point-in-time read of a backend's transfer counters.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	TunnelIP      string
}

// Backend is the uniform contract both tunnel implementations satisfy.
type Backend interface {
	Connect(ctx context.Context, server *vpn.VPNServer) error
	Disconnect(ctx context.Context) error
	ForceDisconnect()
	IsUp() bool
	Stats() (Stats, error)
	SetDNSServers(servers []string)
}
