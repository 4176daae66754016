// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/outpost-dev/vpnctl/internal/logging"
	"github.com/outpost-dev/vpnctl/internal/platform"
)

// testDomains are known to return the answering resolver's own address,
// the standard "what DNS server am I using" echo trick.
var testDomains = []string{
	"whoami.akamai.net",
	"myip.opendns.com",
	"ident.me",
}

const dnsQueryTimeout = 5 * time.Second

// DNSLeakProber resolves a small set of echo domains against the system
// resolver and reverse-looks-up the answers to identify which resolver is
// actually answering queries.
type DNSLeakProber struct {
	probe  *platform.Probe
	logger *logging.Logger
}

// NewDNSLeakProber constructs a prober. A nil probe defaults to a real
// platform.Probe used to discover the system resolver via resolv.conf.
func NewDNSLeakProber(probe *platform.Probe, logger *logging.Logger) *DNSLeakProber {
	if probe == nil {
		probe = platform.NewProbe(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DNSLeakProber{probe: probe, logger: logger.WithComponent("probe.dnsleak")}
}

// DNSLeakProbe resolves testDomains against the system resolver
// (/etc/resolv.conf's first nameserver) and returns the set of responding
// resolvers that don't match any entry in expectedDNS by substring. If no
// usable system resolver can be found, returns an empty set (fail-soft)
// and logs a degradation warning rather than erroring.
func (p *DNSLeakProber) DNSLeakProbe(ctx context.Context, expectedDNS []string) ([]string, error) {
	nameservers, err := p.probe.ResolvConfNameservers()
	if err != nil || len(nameservers) == 0 {
		p.logger.Warn("dns leak probe degraded: no usable system resolver configured", "error", err)
		return nil, nil
	}
	resolverAddr := net.JoinHostPort(nameservers[0], "53")

	return p.dnsLeakProbeAt(ctx, resolverAddr, expectedDNS)
}

// dnsLeakProbeAt runs the probe against an explicit resolver address,
// bypassing resolv.conf discovery; split out of DNSLeakProbe so tests can
// point it at a fixture resolver.
func (p *DNSLeakProber) dnsLeakProbeAt(ctx context.Context, resolverAddr string, expectedDNS []string) ([]string, error) {
	client := &dns.Client{Timeout: dnsQueryTimeout}
	found := map[string]struct{}{}

	for _, domain := range testDomains {
		if ctx.Err() != nil {
			break
		}

		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(domain), dns.TypeA)

		resp, _, err := client.ExchangeContext(ctx, msg, resolverAddr)
		if err != nil || resp == nil {
			continue
		}

		for _, ans := range resp.Answer {
			a, ok := ans.(*dns.A)
			if !ok {
				continue
			}
			found[p.reverseLookup(ctx, client, resolverAddr, a.A)] = struct{}{}
		}
	}

	var leaks []string
	for server := range found {
		if !matchesAny(server, expectedDNS) {
			leaks = append(leaks, server)
		}
	}
	return leaks, nil
}

func (p *DNSLeakProber) reverseLookup(ctx context.Context, client *dns.Client, resolverAddr string, ip net.IP) string {
	reverse, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return ip.String()
	}

	msg := new(dns.Msg)
	msg.SetQuestion(reverse, dns.TypePTR)

	resp, _, err := client.ExchangeContext(ctx, msg, resolverAddr)
	if err != nil || resp == nil || len(resp.Answer) == 0 {
		return ip.String()
	}

	if ptr, ok := resp.Answer[0].(*dns.PTR); ok {
		return strings.TrimSuffix(ptr.Ptr, ".")
	}
	return ip.String()
}

func matchesAny(server string, expected []string) bool {
	for _, e := range expected {
		if strings.Contains(e, server) || strings.Contains(server, e) {
			return true
		}
	}
	return false
}
