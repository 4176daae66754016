// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package selector filters and scores an in-memory server catalog for the
// VPN Controller: list, filter, random pick, and best-by-score selection.
// It holds no state beyond the catalog handed to it at construction — the
// catalog itself is someone else's job (a caller, or internal/inventory
// loading one from disk).
package selector

import (
	"math/rand"
	"strings"

	"github.com/outpost-dev/vpnctl/internal/vpn"
)

// Selector filters and ranks a fixed catalog of servers.
type Selector struct {
	servers []*vpn.VPNServer
}

// New constructs a Selector over servers. The slice is not copied; callers
// should treat it as owned by the Selector afterward.
func New(servers []*vpn.VPNServer) *Selector {
	return &Selector{servers: servers}
}

// Update replaces the catalog, e.g. after internal/inventory reloads it
// from disk.
func (s *Selector) Update(servers []*vpn.VPNServer) {
	s.servers = servers
}

// All returns every server in the catalog.
func (s *Selector) All() []*vpn.VPNServer {
	return s.servers
}

// ByCountry returns servers whose country matches exactly, case-insensitive.
func (s *Selector) ByCountry(country string) []*vpn.VPNServer {
	var out []*vpn.VPNServer
	for _, srv := range s.servers {
		if strings.EqualFold(srv.Country(), country) {
			out = append(out, srv)
		}
	}
	return out
}

// Filter narrows a Find call. Empty fields are not applied.
type Filter struct {
	Country           string
	Protocol          vpn.Protocol
	LocationSubstring string
	Port              int
	HostnameSubstring string
}

// Find returns every server matching every non-zero field of f.
func (s *Selector) Find(f Filter) []*vpn.VPNServer {
	var out []*vpn.VPNServer
	for _, srv := range s.servers {
		if f.Country != "" && !strings.Contains(strings.ToLower(srv.Country()), strings.ToLower(f.Country)) {
			continue
		}
		if f.Protocol != "" && srv.Protocol() != f.Protocol {
			continue
		}
		if f.LocationSubstring != "" && !strings.Contains(strings.ToLower(srv.Location()), strings.ToLower(f.LocationSubstring)) {
			continue
		}
		if f.Port != 0 && srv.Port() != f.Port {
			continue
		}
		if f.HostnameSubstring != "" && !strings.Contains(strings.ToLower(srv.Hostname()), strings.ToLower(f.HostnameSubstring)) {
			continue
		}
		out = append(out, srv)
	}
	return out
}

// Random returns a uniformly random server from the full catalog, or nil
// if empty.
func (s *Selector) Random() *vpn.VPNServer {
	if len(s.servers) == 0 {
		return nil
	}
	return s.servers[rand.Intn(len(s.servers))]
}

// Best returns the highest-scoring server, excluding excludeID if set.
// Ties are broken by lower latency; a server with no known latency loses
// to any server with a known latency. Returns nil if nothing qualifies.
func (s *Selector) Best(excludeID string) *vpn.VPNServer {
	var best *vpn.VPNServer
	for _, srv := range s.servers {
		if excludeID != "" && srv.ID() == excludeID {
			continue
		}
		if best == nil || lessByScoreThenLatency(srv, best) {
			best = srv
		}
	}
	return best
}

// lessByScoreThenLatency reports whether a ranks strictly ahead of b:
// higher score wins; on a tie, lower (known) latency wins; unknown
// latency loses to any known latency.
func lessByScoreThenLatency(a, b *vpn.VPNServer) bool {
	if a.Score() != b.Score() {
		return a.Score() > b.Score()
	}

	aLat, aOK := a.LatencyMS()
	bLat, bOK := b.LatencyMS()
	switch {
	case aOK && bOK:
		return aLat < bLat
	case aOK && !bOK:
		return true
	case !aOK && bOK:
		return false
	default:
		return false
	}
}
