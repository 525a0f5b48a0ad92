// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/bmsctl/pkg/bmsclient"
	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/params"
	"github.com/Thermoquad/bmsctl/pkg/transport"
)

// EnvPassword holds the broker password
const EnvPassword = "BMSCTL_PASSWORD"

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// parseAddress accepts decimal or 0x-prefixed bus addresses
func parseAddress(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, bmserr.Configuration("invalid bus address %q", s)
	}
	return byte(v), nil
}

// OpenTransport builds the transport selected by flags and connects it.
// tap, when non-nil, sees every reassembled frame.
func OpenTransport(ctx context.Context, tap transport.TapFunc) (transport.Transport, string, error) {
	opts := transport.Options{
		Timeout: requestTimeout,
		Logger:  logger,
		Tap:     tap,
	}

	var (
		t    transport.Transport
		info string
	)
	switch strings.ToLower(transportName) {
	case "ble":
		t = transport.NewBLE(transport.BLEConfig{Options: opts, DeviceID: deviceID})
		info = fmt.Sprintf("BLE: %s", deviceID)

	case "mqtt", "ws", "broker":
		password := ""
		if username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		t = transport.NewBroker(transport.BrokerConfig{
			Options:            opts,
			URL:                brokerURL,
			ClientID:           clientID,
			Username:           username,
			Password:           password,
			PubTopic:           pubTopic,
			SubTopic:           subTopic,
			KeepAlive:          keepAlive,
			InsecureSkipVerify: wsNoSSLVerify,
		})
		info = fmt.Sprintf("MQTT: %s (%s -> %s)", brokerURL, pubTopic, subTopic)

	case "serial":
		t = transport.NewSerial(transport.SerialConfig{Options: opts, Port: portName, Baud: baudRate})
		info = fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate)

	case "sim":
		bus, err := newSimulator()
		if err != nil {
			return nil, "", err
		}
		t = transport.NewLoopback(bus, transport.LoopbackConfig{Options: opts, SplitDelivery: true, Seed: 1})
		info = "Simulator"

	default:
		return nil, "", bmserr.Configuration("unknown transport %q (use ble, mqtt, serial or sim)", transportName)
	}

	if err := t.Connect(ctx); err != nil {
		return nil, "", err
	}
	return t, info, nil
}

// loadRegistry loads the parameter map when --params is set
func loadRegistry() (*params.Registry, error) {
	if paramsPath == "" {
		return nil, nil
	}
	return params.Load(paramsPath)
}

// session is an open transport and a client bound to it
type session struct {
	transport transport.Transport
	client    *bmsclient.Client
	info      string
}

func (s *session) Close() error {
	return s.transport.Close()
}

// OpenSession connects the selected transport and wraps it in a client
func OpenSession(ctx context.Context, needParams bool) (*session, error) {
	target, err := parseAddress(targetAddr)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	if needParams && reg == nil {
		return nil, bmserr.Configuration("this command needs a parameter map (--params)")
	}

	t, info, err := OpenTransport(ctx, nil)
	if err != nil {
		return nil, err
	}
	client, err := bmsclient.New(t, bmsclient.Options{
		Target:   target,
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		t.Close()
		return nil, err
	}
	return &session{transport: t, client: client, info: info}, nil
}
