// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command vpnctl is the CLI front end for the VPN kill-switch and tunnel
// supervisor. connect/disconnect/rotate/status drive an already-running
// "vpnctl daemon" process via its PID file and a small set of signals and
// request files; "vpnctl daemon" is the one long-lived process that
// actually owns a *vpn.Controller.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/outpost-dev/vpnctl/internal/brand"
)

var (
	// Version is set at build time via -ldflags.
	Version = "dev"

	configFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     brand.LowerName,
	Short:   brand.Description,
	Long:    brand.Name + " - " + brand.Tagline,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.json (default: "+brand.LowerName+"'s install config dir)")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
}
