// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-dev/vpnctl/internal/vpn"
)

func sampleServers() []*vpn.VPNServer {
	return []*vpn.VPNServer{
		vpn.NewVPNServer("is-1", "is1.example.net", "198.51.100.1", vpn.ProtocolUDP, 1194,
			vpn.WithLocation("Iceland", "Reykjavik"), vpn.WithScore(80), vpn.WithLatencyMS(42.5)),
		vpn.NewVPNServer("se-1", "se1.example.net", "198.51.100.2", vpn.ProtocolWireGuard, 51820,
			vpn.WithLocation("Sweden", "Stockholm"), vpn.WithConfigPath("/etc/vpnctl/se1.conf")),
	}
}

func TestSaveLoad_YAML_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")

	require.NoError(t, Save(path, sampleServers()))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "is-1", loaded[0].ID())
	assert.Equal(t, "Iceland", loaded[0].Country())
	assert.Equal(t, "Reykjavik", loaded[0].City())
	lat, ok := loaded[0].LatencyMS()
	require.True(t, ok)
	assert.Equal(t, 42.5, lat)
	assert.Equal(t, 80.0, loaded[0].Score())

	assert.Equal(t, "/etc/vpnctl/se1.conf", loaded[1].ConfigPath())
	assert.Equal(t, vpn.ProtocolWireGuard, loaded[1].Protocol())
}

func TestSaveLoad_JSON_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")

	require.NoError(t, Save(path, sampleServers()))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "se-1", loaded[1].ID())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
