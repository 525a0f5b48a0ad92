// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/transport"
)

var (
	scanDuration time.Duration
	scanAll      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover BMS peripherals over BLE",
	Long: `Scan for BLE peripherals advertising the BMS service.

Use --all to list every advertising peripheral, which helps with packs that
do not advertise their service UUID.

Exit codes:
  0 - At least one peripheral found
  1 - Nothing found
  2 - Adapter error`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 5*time.Second, "How long to scan")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List peripherals without the BMS service")
}

func runScan(cmd *cobra.Command, args []string) error {
	service := transport.BLEServiceUUID
	if scanAll {
		service = ""
	}

	fmt.Fprintf(os.Stderr, "Scanning for %s...\n", scanDuration)
	found, err := transport.Discover(cmd.Context(), scanDuration, service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan error: %v\n", err)
		os.Exit(2)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].RSSI > found[j].RSSI })

	err = output(found, func(w io.Writer) error {
		if len(found) == 0 {
			printf(w, "No peripherals found\n")
			return nil
		}
		for _, p := range found {
			name := p.Name
			if name == "" {
				name = "(unnamed)"
			}
			printf(w, "%-20s %4d dBm  %s\n", p.Address, p.RSSI, name)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		os.Exit(1)
	}
	return nil
}
