// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/outpost-dev/vpnctl/internal/brand"
	"github.com/outpost-dev/vpnctl/internal/install"
)

var connectKillSwitch bool

var connectCmd = &cobra.Command{
	Use:   "connect <server-id>",
	Short: "Connect to a VPN server, launching the daemon if needed",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnect,
}

func init() {
	connectCmd.Flags().BoolVar(&connectKillSwitch, "kill-switch", true, "enable the kill switch for this session")
}

// runConnect mirrors the teacher's "start" idiom: check for an existing
// PID, detach a copy of this binary running "daemon --server <id>" with
// stdout/stderr redirected to the log file, and watch briefly for an
// immediate exit before declaring success.
func runConnect(cmd *cobra.Command, args []string) error {
	serverID := args[0]

	if running, pid := daemonRunning(); running {
		return fmt.Errorf("%s already running (PID: %d); use \"%s rotate\" to switch servers", brand.Name, pid, brand.LowerName)
	}
	cleanupStalePIDFile()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	daemonArgs := []string{"daemon", "--server", serverID}
	if !connectKillSwitch {
		daemonArgs = append(daemonArgs, "--no-kill-switch")
	}
	if configFile != "" {
		daemonArgs = append(daemonArgs, "--config", configFile)
	}

	child := exec.Command(exe, daemonArgs...)

	logDir := install.GetLogDir()
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logPath := logFilePath()
	logF, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logF.Close()

	child.Stdout = logF
	child.Stderr = logF
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	pid := child.Process.Pid
	fmt.Printf("Connecting to %s (PID: %d)\n", serverID, pid)
	fmt.Printf("Logs: %s\n", logPath)

	done := make(chan error, 1)
	go func() { done <- child.Wait() }()

	select {
	case err := <-done:
		fmt.Fprintln(os.Stderr, "\nError: daemon exited immediately.")
		for _, line := range tailLogFile(logPath, 10) {
			fmt.Fprintf(os.Stderr, "  %s\n", line)
		}
		if err != nil {
			return fmt.Errorf("daemon failed to start: %w", err)
		}
		return fmt.Errorf("daemon exited unexpectedly")

	case <-time.After(500 * time.Millisecond):
		if err := child.Process.Signal(syscall.Signal(0)); err != nil {
			return fmt.Errorf("daemon died during startup (check logs: %s)", logPath)
		}
		fmt.Println("Connected.")
		return nil
	}
}

// daemonRunning reports whether the PID file names a live process.
func daemonRunning() (bool, int) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return false, 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}
	return true, pid
}

func cleanupStalePIDFile() {
	if _, err := os.Stat(pidFilePath()); err == nil {
		os.Remove(pidFilePath())
	}
}

func tailLogFile(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
