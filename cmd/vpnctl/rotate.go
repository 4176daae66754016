// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	rotateLocation string
	rotateRandom   bool
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the active tunnel's exit IP without dropping the kill switch",
	Long: `rotate asks the running daemon to pick a new server and reconnect
to it. Since the CLI and the daemon are separate processes with no RPC
channel, the request (location filter or random) is written to a small
file the daemon reads when it receives SIGHUP.`,
	RunE: runRotate,
}

func init() {
	rotateCmd.Flags().StringVar(&rotateLocation, "location", "", "rotate to a server matching this location substring")
	rotateCmd.Flags().BoolVar(&rotateRandom, "random", false, "rotate to a random server instead of the highest-scored one")
}

func runRotate(cmd *cobra.Command, args []string) error {
	if rotateLocation != "" && rotateRandom {
		return fmt.Errorf("--location and --random are mutually exclusive")
	}

	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return fmt.Errorf("no PID file found at %s (is the daemon running?)", pidFilePath())
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	req := rotateRequest{Location: rotateLocation, Random: rotateRandom}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode rotate request: %w", err)
	}
	if err := os.WriteFile(rotateRequestFilePath(), payload, 0o644); err != nil {
		return fmt.Errorf("write rotate request: %w", err)
	}

	if err := process.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("send SIGHUP: %w", err)
	}

	fmt.Println("Rotation requested.")
	return nil
}
