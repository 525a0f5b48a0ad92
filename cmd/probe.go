// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/bmsclient"
)

var (
	probeCount    int
	probeInterval time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Measure round trips to the BMS",
	Long: `Read the status header repeatedly and report round trip times.

This is useful for verifying:
  - The transport connects and authenticates
  - The BMS answers at the configured address
  - Pacing and timeout settings suit the link

Exit codes:
  0 - All probes answered
  1 - One or more probes failed
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "Number of probes to send")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", 200*time.Millisecond, "Delay between probes")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := OpenSession(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("bmsctl - Probe\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Target: 0x%02X\n", s.client.Target())
	fmt.Printf("Count: %d probes\n\n", probeCount)

	successCount := 0
	failCount := 0
	for i := 1; i <= probeCount; i++ {
		fmt.Printf("Probe %d/%d: ", i, probeCount)

		start := time.Now()
		regs, err := s.client.ReadRegisters(ctx, bmsclient.StatusHeader, 1)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			rtt := time.Since(start)
			fmt.Printf("cells=%d temps=%d, rtt=%v\n", regs[0]>>8, regs[0]&0xFF, rtt.Round(time.Millisecond))
			successCount++
		}

		if ctx.Err() != nil {
			break
		}
		if i < probeCount {
			time.Sleep(probeInterval)
		}
	}

	// Summary
	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d probes sent, %d responses received, %.0f%% loss\n",
		probeCount, successCount, float64(failCount)/float64(probeCount)*100)
	fmt.Printf("%s\n", s.transport.Statistics())

	if failCount > 0 {
		s.Close()
		os.Exit(1)
	}
	return nil
}
