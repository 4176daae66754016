// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

// VPNEndpoint is one VPN server address the policy must allow outbound
// traffic to regardless of the otherwise-default-deny policy.
type VPNEndpoint struct {
	IP       string `json:"ip"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

// Policy describes the kill-switch lockdown rules to apply. It is built up
// by the Kill-Switch Manager and handed to Driver.Apply.
type Policy struct {
	AllowLAN       bool
	LANCIDRs       []string
	TunnelPatterns []string
	AllowedDNS     []string
	VPNServers     []VPNEndpoint
	Strict         bool
}

// AddVPNServer appends a VPN endpoint to the allow-list. Callers are
// expected to do this before Enable(), since a running Manager only picks
// up new endpoints on the next Enable(ctx, _, force=true).
func (p *Policy) AddVPNServer(ip, protocol string, port int) {
	p.VPNServers = append(p.VPNServers, VPNEndpoint{IP: ip, Protocol: protocol, Port: port})
}

// AddDNS appends a DNS server address to the allow-list.
func (p *Policy) AddDNS(ip string) {
	p.AllowedDNS = append(p.AllowedDNS, ip)
}
