// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package inventory loads and caches a server catalog for
// internal/selector from a YAML or JSON file on disk. It is a thin cache
// reader/writer, not a catalog-maintenance service: refreshing the
// catalog from a remote subscription endpoint is out of scope.
package inventory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	vpnerrors "github.com/outpost-dev/vpnctl/internal/errors"
	"github.com/outpost-dev/vpnctl/internal/vpn"
)

// entry is the on-disk shape of a VPNServer; vpn.VPNServer's fields are
// unexported (by design, so Selector callers can't mutate a live server),
// so loading/saving goes through this DTO instead of marshaling the type
// directly.
type entry struct {
	ID       string  `yaml:"id" json:"id"`
	Hostname string  `yaml:"hostname" json:"hostname"`
	IP       string  `yaml:"ip" json:"ip"`
	Country  string  `yaml:"country,omitempty" json:"country,omitempty"`
	City     string  `yaml:"city,omitempty" json:"city,omitempty"`
	ISP      string  `yaml:"isp,omitempty" json:"isp,omitempty"`
	Protocol string  `yaml:"protocol" json:"protocol"`
	Port     int     `yaml:"port" json:"port"`

	LatencyMS  *float64 `yaml:"latency_ms,omitempty" json:"latency_ms,omitempty"`
	Load       *int     `yaml:"load,omitempty" json:"load,omitempty"`
	Score      float64  `yaml:"score,omitempty" json:"score,omitempty"`
	ConfigPath string   `yaml:"config_path,omitempty" json:"config_path,omitempty"`
}

func (e entry) toVPNServer() *vpn.VPNServer {
	var opts []vpn.VPNServerOption
	if e.Country != "" || e.City != "" {
		opts = append(opts, vpn.WithLocation(e.Country, e.City))
	}
	if e.ISP != "" {
		opts = append(opts, vpn.WithISP(e.ISP))
	}
	if e.LatencyMS != nil {
		opts = append(opts, vpn.WithLatencyMS(*e.LatencyMS))
	}
	if e.Load != nil {
		opts = append(opts, vpn.WithLoad(*e.Load))
	}
	if e.Score != 0 {
		opts = append(opts, vpn.WithScore(e.Score))
	}
	if e.ConfigPath != "" {
		opts = append(opts, vpn.WithConfigPath(e.ConfigPath))
	}
	return vpn.NewVPNServer(e.ID, e.Hostname, e.IP, vpn.Protocol(e.Protocol), e.Port, opts...)
}

func fromVPNServer(s *vpn.VPNServer) entry {
	e := entry{
		ID:       s.ID(),
		Hostname: s.Hostname(),
		IP:       s.IP(),
		Country:  s.Country(),
		City:     s.City(),
		ISP:      s.ISP(),
		Protocol: string(s.Protocol()),
		Port:     s.Port(),
		Score:    s.Score(),

		ConfigPath: s.ConfigPath(),
	}
	if ms, ok := s.LatencyMS(); ok {
		e.LatencyMS = &ms
	}
	if pct, ok := s.Load(); ok {
		e.Load = &pct
	}
	return e
}

// Load reads a server catalog from path, dispatching on the file
// extension: ".json" for JSON, anything else (".yaml", ".yml", or none)
// for YAML.
func Load(path string) ([]*vpn.VPNServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vpnerrors.Wrap(err, vpnerrors.KindNotFound, "read server inventory "+path)
	}

	var entries []entry
	if isJSON(path) {
		err = json.Unmarshal(data, &entries)
	} else {
		err = yaml.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, vpnerrors.Wrap(err, vpnerrors.KindValidation, "parse server inventory "+path)
	}

	servers := make([]*vpn.VPNServer, 0, len(entries))
	for _, e := range entries {
		servers = append(servers, e.toVPNServer())
	}
	return servers, nil
}

// Save writes servers to path in the format implied by its extension,
// creating parent directories as needed.
func Save(path string, servers []*vpn.VPNServer) error {
	entries := make([]entry, 0, len(servers))
	for _, s := range servers {
		entries = append(entries, fromVPNServer(s))
	}

	var data []byte
	var err error
	if isJSON(path) {
		data, err = json.MarshalIndent(entries, "", "  ")
	} else {
		data, err = yaml.Marshal(entries)
	}
	if err != nil {
		return vpnerrors.Wrap(err, vpnerrors.KindInternal, "encode server inventory")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vpnerrors.Wrap(err, vpnerrors.KindInternal, "create inventory cache directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return vpnerrors.Wrap(err, vpnerrors.KindInternal, "write server inventory "+path)
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
