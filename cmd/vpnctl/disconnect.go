// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/outpost-dev/vpnctl/internal/brand"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the running daemon and tear down the tunnel",
	RunE:  runDisconnect,
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PID file found at %s (is %s running?)", pidFilePath(), brand.LowerName)
		}
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	fmt.Printf("Disconnecting %s (PID: %d)...\n", brand.Name, pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	for i := 0; i < 50; i++ {
		if _, err := os.Stat(pidFilePath()); os.IsNotExist(err) {
			fmt.Println("Disconnected.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Warning: PID file still exists. The daemon might be stuck or slow to shut down.")
	return nil
}
