// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used across the VPN
// controller, firewall driver, and tunnel backends. It wraps log/slog with
// a small convenience layer (component tagging, error/field attachment,
// syslog forwarding) so call sites read the same whether they log to
// stderr or to a remote collector.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Level mirrors slog.Level under names that read naturally at call sites.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format selects the slog handler used to render records.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// Config controls logger construction.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
	Syslog SyslogConfig
}

// DefaultConfig returns the controller's default logging configuration:
// info level, JSON to stderr, syslog disabled.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
		Syslog: DefaultSyslogConfig(),
	}
}

// Logger is a structured logger with component tagging and chained
// error/field attachment.
type Logger struct {
	slog *slog.Logger
}

// New builds a Logger from cfg. If cfg.Syslog.Enabled and a syslog writer
// can be dialed, output is forwarded there instead of cfg.Output; a dial
// failure falls back to cfg.Output rather than failing startup.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Syslog.Enabled {
		if w, err := NewSyslogWriter(cfg.Syslog); err == nil {
			out = w
		}
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return &Logger{slog: slog.New(handler)}
}

// WithComponent returns a Logger tagged with a "component" field, the
// idiom used throughout the controller to namespace log lines by
// subsystem (e.g. "firewall", "backend", "probe").
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{slog: l.slog.With("component", name)}
}

// WithError returns a Logger with an "error" field attached.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{slog: l.slog.With("error", err.Error())}
}

// WithFields returns a Logger with the given key/value pairs attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// DebugContext/InfoContext/WarnContext/ErrorContext thread a context
// through to the handler, used by call sites that attach trace/request
// scoped attributes via context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}

var defaultLogger = New(DefaultConfig())

// SetDefault replaces the package-level default logger, used once at
// startup after the controller config has been loaded.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level logger.
func Default() *Logger { return defaultLogger }

// WithComponent, Debug, Info, Warn, Error mirror the methods above against
// the package-level default logger, for call sites that don't carry their
// own *Logger.
func WithComponent(name string) *Logger       { return defaultLogger.WithComponent(name) }
func Debug(msg string, args ...any)           { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)            { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)            { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any)           { defaultLogger.Error(msg, args...) }
