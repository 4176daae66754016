// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's last known connection state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status snapshot as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(statusFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("DISCONNECTED (daemon not running)")
			return nil
		}
		return fmt.Errorf("read status snapshot: %w", err)
	}

	if statusJSON {
		fmt.Println(string(data))
		return nil
	}

	var snap statusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse status snapshot: %w", err)
	}

	running, pid := daemonRunning()

	fmt.Printf("State:        %s\n", snap.State)
	if running {
		fmt.Printf("Daemon PID:   %d\n", pid)
	} else {
		fmt.Println("Daemon:       not running (stale snapshot)")
	}
	if snap.ServerID != "" {
		fmt.Printf("Server:       %s (%s)\n", snap.ServerID, snap.ServerHostname)
	}
	if snap.Location != "" {
		fmt.Printf("Location:     %s\n", snap.Location)
	}
	if snap.PublicIP != "" {
		fmt.Printf("Public IP:    %s\n", snap.PublicIP)
	}
	fmt.Printf("Kill switch:  %s\n", boolState(snap.KillSwitchActive))
	if snap.Connected {
		fmt.Printf("Bytes sent:     %d\n", snap.BytesSent)
		fmt.Printf("Bytes received: %d\n", snap.BytesReceived)
		if !snap.ConnectedSince.IsZero() {
			fmt.Printf("Connected since: %s\n", snap.ConnectedSince.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func boolState(b bool) string {
	if b {
		return "ACTIVE"
	}
	return "INACTIVE"
}
