// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvConfNameserversAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	content := "nameserver 1.1.1.1\nnameserver 1.0.0.1\nsearch example.net\noptions timeout:1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewProbe(nil)
	servers, err := p.ResolvConfNameserversAt(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 2 || servers[0] != "1.1.1.1" || servers[1] != "1.0.0.1" {
		t.Errorf("servers = %v", servers)
	}
}

func TestResolvConfNameserversAt_MissingFile(t *testing.T) {
	p := NewProbe(nil)
	_, err := p.ResolvConfNameserversAt(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
