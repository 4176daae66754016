// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package probe queries the network for the signals the VPN Controller's
// monitor loop needs: public IP, geolocation, DNS-leak exposure, latency,
// and cheap ICMP reachability. Every probe here fails soft except
// PublicIP and Latency, which return a KindProbeUnavailable error when
// every attempt fails.
package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
)

// echoServices is queried in order; the first globally-routable IPv4
// response wins (IPv6 answers are rejected).
var echoServices = []string{
	"https://api.ipify.org",
	"https://icanhazip.com",
	"https://checkip.amazonaws.com",
	"https://ifconfig.me/ip",
}

const publicIPCacheTTL = 5 * time.Minute

// PublicIPProbe resolves the host's current public IP, caching the result
// for publicIPCacheTTL.
type PublicIPProbe struct {
	client   *http.Client
	services []string

	mu       sync.Mutex
	cached   net.IP
	cachedAt time.Time
}

// NewPublicIPProbe constructs a probe with a 5-second HTTP client timeout
// against the well-known echo services.
func NewPublicIPProbe() *PublicIPProbe {
	return NewPublicIPProbeWithServices(echoServices, &http.Client{Timeout: 5 * time.Second})
}

// NewPublicIPProbeWithServices allows tests to substitute the echo-service
// list and HTTP client without touching the real internet.
func NewPublicIPProbeWithServices(services []string, client *http.Client) *PublicIPProbe {
	return &PublicIPProbe{client: client, services: services}
}

// PublicIP returns the cached IP unless force is set or the cache has
// expired. Returns KindProbeUnavailable if every echo service fails.
func (p *PublicIPProbe) PublicIP(ctx context.Context, force bool) (net.IP, error) {
	p.mu.Lock()
	if !force && p.cached != nil && time.Since(p.cachedAt) < publicIPCacheTTL {
		ip := p.cached
		p.mu.Unlock()
		return ip, nil
	}
	p.mu.Unlock()

	for _, service := range p.services {
		ip, err := p.query(ctx, service)
		if err != nil {
			continue
		}
		p.mu.Lock()
		p.cached = ip
		p.cachedAt = time.Now()
		p.mu.Unlock()
		return ip, nil
	}

	return nil, vpnerrors.New(vpnerrors.KindProbeUnavailable, "all public IP echo services failed")
}

func (p *PublicIPProbe) query(ctx context.Context, url string) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return nil, err
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil || ip.To4() == nil || !isGloballyRoutable(ip) {
		return nil, vpnerrors.New(vpnerrors.KindProbeUnavailable, "echo service returned an unroutable address")
	}
	return ip, nil
}

func isGloballyRoutable(ip net.IP) bool {
	return !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() && !ip.IsMulticast()
}
