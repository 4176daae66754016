// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// SyslogConfig configures optional forwarding of log records to a remote
// syslog collector, disabled by default.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns syslog forwarding in its disabled state with
// RFC 3164-typical defaults, so enabling it only requires setting Host.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "vpnctl",
		Facility: 1, // user-level messages
	}
}

// syslogWriter is an io.Writer that forwards each Write as one RFC
// 3164-framed syslog datagram/stream message.
type syslogWriter struct {
	conn     net.Conn
	tag      string
	facility int
}

// NewSyslogWriter dials the configured syslog collector. Host must be set;
// Port, Protocol, and Tag are defaulted when left zero.
func NewSyslogWriter(cfg SyslogConfig) (*syslogWriter, error) {
	if cfg.Host == "" {
		return nil, errors.New("logging: syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "vpnctl"
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	conn, err := net.DialTimeout(cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("logging: dial syslog collector: %w", err)
	}

	return &syslogWriter{conn: conn, tag: cfg.Tag, facility: cfg.Facility}, nil
}

// Write implements io.Writer, framing p as a single syslog message. The
// severity is fixed at "informational" (6); record-level severity already
// lives in the JSON/text payload slog produced.
func (w *syslogWriter) Write(p []byte) (int, error) {
	const severityInformational = 6
	priority := w.facility*8 + severityInformational

	msg := fmt.Sprintf("<%d>%s %s: %s", priority, time.Now().Format(time.Stamp), w.tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *syslogWriter) Close() error {
	return w.conn.Close()
}
