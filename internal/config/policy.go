// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// PolicyOverlay is the optional HCL-described addition to whatever
// kill-switch policy the controller has already assembled from its server,
// DNS, and config-file settings. It is additive only: fields are unioned
// onto the existing policy, never subtracted.
type PolicyOverlay struct {
	ExtraVPNEndpoints []PolicyEndpoint `hcl:"extra_vpn_endpoint,block"`
	ExtraDNSServers   []string         `hcl:"extra_dns_servers,optional"`
	ExtraLANCIDRs     []string         `hcl:"extra_lan_cidrs,optional"`
	Strict            bool             `hcl:"strict,optional"`
}

// PolicyEndpoint is one additional allowed VPN endpoint.
type PolicyEndpoint struct {
	IP       string `hcl:"ip"`
	Protocol string `hcl:"protocol"`
	Port     int    `hcl:"port"`
}

// LoadPolicyOverlay parses an HCL policy file. A missing file is not an
// error: it returns a zero-value overlay, since the overlay is optional.
func LoadPolicyOverlay(path string) (PolicyOverlay, error) {
	var overlay PolicyOverlay

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overlay, nil
		}
		return overlay, fmt.Errorf("config: read policy %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return overlay, fmt.Errorf("config: parse policy HCL: %w", diags)
	}

	if diags := gohcl.DecodeBody(file.Body, nil, &overlay); diags.HasErrors() {
		return overlay, fmt.Errorf("config: decode policy HCL: %w", diags)
	}

	return overlay, nil
}
