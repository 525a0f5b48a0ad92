// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/logging"
)

var (
	// Transport selection
	transportName string

	// BLE flags
	deviceID string

	// Broker tunnel flags
	brokerURL     string
	clientID      string
	pubTopic      string
	subTopic      string
	username      string
	keepAlive     time.Duration
	wsNoSSLVerify bool

	// Serial flags
	portName string
	baudRate int

	// Client flags
	targetAddr     string
	paramsPath     string
	requestTimeout time.Duration

	configPath   string
	logLevel     string
	outputFormat string

	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "bmsctl",
	Short: "BMS client over BLE, MQTT tunnel or serial",
	Long: `bmsctl - Read and configure a battery management system.

Talks the BMS register protocol over one of several byte links and exposes
raw register access, named parameters, categories and live status.

Transports:
  BLE:     --transport ble --device AA:BB:CC:DD:EE:FF (or advertised name)
  MQTT:    --transport mqtt --url wss://host/mqtt --client-id id --pub-topic t --sub-topic t
  Serial:  --transport serial --port /dev/ttyUSB0 [--baud 9600]
  Sim:     --transport sim (in-process simulated pack)

For broker authentication, the password is read from the BMSCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Flags may also be set from a TOML profile (--config or BMSCTL_CONFIG); flags
given on the command line take precedence.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadProfile(cmd); err != nil {
			return err
		}
		l, err := logging.New(logLevel)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&transportName, "transport", "t", "sim", "Transport: ble, mqtt, serial or sim")

	pf.StringVarP(&deviceID, "device", "d", "", "BLE peripheral address or local name")

	pf.StringVarP(&brokerURL, "url", "u", "", "Broker WebSocket URL (ws:// or wss://)")
	pf.StringVar(&clientID, "client-id", "", "MQTT client identifier")
	pf.StringVar(&pubTopic, "pub-topic", "", "Topic carrying requests to the device")
	pf.StringVar(&subTopic, "sub-topic", "", "Topic carrying replies from the device")
	pf.StringVar(&username, "username", "", "Broker user name")
	pf.DurationVar(&keepAlive, "keepalive", 30*time.Second, "MQTT keepalive")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	pf.StringVarP(&portName, "port", "p", "", "Serial port device")
	pf.IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	pf.StringVar(&targetAddr, "target", "0x01", "Bus address of the BMS")
	pf.StringVar(&paramsPath, "params", "", "YAML parameter address map")
	pf.DurationVar(&requestTimeout, "timeout", 0, "Response timeout (0 uses the transport default)")

	pf.StringVarP(&configPath, "config", "c", "", "TOML profile")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error")
	pf.StringVarP(&outputFormat, "format", "f", "text", "Output format: text, json, yaml or cbor")
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
