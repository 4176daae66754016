// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package platform

import (
	"strings"

	"github.com/vishvananda/netlink"
)

// Netlinker abstracts the subset of netlink used by InterfaceExists, so
// tests can supply a fake link list without a real kernel interface.
type Netlinker interface {
	LinkList() ([]netlink.Link, error)
}

// RealNetlinker calls into github.com/vishvananda/netlink.
type RealNetlinker struct{}

// LinkList implements Netlinker.
func (RealNetlinker) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

// InterfaceExists reports whether any live interface name matches pattern,
// a cheap supplementary check beyond the "ip link show" subprocess parse,
// used by the WireGuard backend's IsUp() alongside its "wg show <iface>"
// check.
// A trailing "+" in pattern (e.g. "tun+") matches any name with that
// prefix, mirroring the kernel's own wildcard interface naming idiom.
func InterfaceExists(nl Netlinker, pattern string) bool {
	if nl == nil {
		nl = RealNetlinker{}
	}

	links, err := nl.LinkList()
	if err != nil {
		return false
	}

	prefix, isWildcard := strings.CutSuffix(pattern, "+")

	for _, link := range links {
		name := link.Attrs().Name
		if isWildcard {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		} else if name == pattern {
			return true
		}
	}
	return false
}
