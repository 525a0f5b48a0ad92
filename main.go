// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// bmsctl - BMS client
//
// Reads and configures battery management systems over BLE, an MQTT broker
// tunnel or a serial link.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/bmsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
