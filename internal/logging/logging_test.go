// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	logger.Info("tunnel up", "server", "nl-ams-01")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected valid JSON line, got error: %v (line: %q)", err, buf.String())
	}
	if rec["msg"] != "tunnel up" {
		t.Errorf("msg = %v, want %q", rec["msg"], "tunnel up")
	}
	if rec["server"] != "nl-ams-01" {
		t.Errorf("server = %v, want %q", rec["server"], "nl-ams-01")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Format: FormatText, Output: &buf})

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info line should have been filtered at warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn line should have been emitted")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf}).WithComponent("firewall")

	logger.Info("snapshot taken")

	if !strings.Contains(buf.String(), `"component":"firewall"`) {
		t.Errorf("expected component field in output, got %q", buf.String())
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	logger.WithError(errors.New("dial tcp: timeout")).Error("probe failed")

	if !strings.Contains(buf.String(), "dial tcp: timeout") {
		t.Errorf("expected error field in output, got %q", buf.String())
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	logger.WithFields(map[string]any{"bytes_sent": 1024}).Info("stats refreshed")

	if !strings.Contains(buf.String(), `"bytes_sent":1024`) {
		t.Errorf("expected bytes_sent field in output, got %q", buf.String())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected default level info, got %v", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format JSON, got %v", cfg.Format)
	}
	if cfg.Syslog.Enabled {
		t.Error("syslog should be disabled by default")
	}
}
