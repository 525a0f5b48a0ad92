// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/frame"
)

var sniffShowRaw bool

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Display frames seen on the link in human-readable format",
	Long: `Connect and continuously decode frames as they arrive without sending
anything. On a shared serial bus or a broker topic this shows the traffic of
other clients.

Press Ctrl+C to exit.`,
	Args: cobra.NoArgs,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&sniffShowRaw, "raw", false, "Also print the raw frame bytes")
}

func runSniff(cmd *cobra.Command, args []string) error {
	frames := make(chan frame.Frame, 64)
	tap := func(f frame.Frame, matched bool) {
		select {
		case frames <- f:
		default:
			logger.Warn().Msg("sniff output lagging, frame dropped")
		}
	}

	t, info, err := OpenTransport(cmd.Context(), tap)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Printf("bmsctl - Frame Log\n")
	fmt.Printf("Connection: %s\n", info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		select {
		case f := <-frames:
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), frame.FormatFrame(f))
			if sniffShowRaw {
				fmt.Printf("  %s\n", frame.FormatHex(f.Raw))
			}
		case <-cmd.Context().Done():
			fmt.Printf("\n%s\n", t.Statistics())
			return nil
		}
	}
}
