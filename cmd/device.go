// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

var (
	syncTimeAt string
	meterAddr  string
)

var uuidCmd = &cobra.Command{
	Use:   "uuid",
	Short: "Read the device identifier",
	Args:  cobra.NoArgs,
	RunE:  runUUID,
}

var syncTimeCmd = &cobra.Command{
	Use:   "sync-time",
	Short: "Set the BMS clock",
	Long: `Write the current time (or --at) to the BMS clock as unix seconds.

Example:
  bmsctl sync-time --at 2025-06-01T12:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runSyncTime,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the live status block",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var meterMACCmd = &cobra.Command{
	Use:   "meter-mac <AA:BB:CC:DD:EE:FF>",
	Short: "Pair the external meter with a BMS MAC address",
	Args:  cobra.ExactArgs(1),
	RunE:  runMeterMAC,
}

func init() {
	rootCmd.AddCommand(uuidCmd)
	rootCmd.AddCommand(syncTimeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(meterMACCmd)
	syncTimeCmd.Flags().StringVar(&syncTimeAt, "at", "", "RFC 3339 time to set instead of now")
	meterMACCmd.Flags().StringVar(&meterAddr, "meter", "0xFC", "Bus address of the meter")
}

func runUUID(cmd *cobra.Command, args []string) error {
	s, err := OpenSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.client.ReadUUID(cmd.Context())
	if err != nil {
		return err
	}
	return output(map[string]string{"uuid": id}, func(w io.Writer) error {
		printf(w, "%s\n", id)
		return nil
	})
}

func runSyncTime(cmd *cobra.Command, args []string) error {
	t := time.Now()
	if syncTimeAt != "" {
		var err error
		t, err = time.Parse(time.RFC3339, syncTimeAt)
		if err != nil {
			return bmserr.Value("invalid --at time: %v", err)
		}
	}

	s, err := OpenSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.client.SyncTime(cmd.Context(), t); err != nil {
		return err
	}
	fmt.Printf("Clock set to %s\n", t.UTC().Format(time.RFC3339))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := OpenSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.client.ReadStatus(cmd.Context())
	if err != nil {
		return err
	}
	fields := st.Fields()
	return output(fields, func(w io.Writer) error {
		printf(w, "%s\n", st)
		if logger.Debug().Enabled() {
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				printf(w, "  %-20s %v\n", k, fields[k])
			}
		}
		return nil
	})
}

func runMeterMAC(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(meterAddr)
	if err != nil {
		return err
	}

	s, err := OpenSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.client.ConfigureMeterMAC(cmd.Context(), addr, args[0]); err != nil {
		return err
	}
	fmt.Printf("Meter 0x%02X paired with %s\n", addr, args[0])
	return nil
}
