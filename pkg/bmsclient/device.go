// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmsclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/frame"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// Device register addresses
const (
	UUIDRegisters  = 8
	TimeRegister   = 0x057C // u32 epoch seconds
	MeterMACStart  = 0x0000
	meterMACLength = 6
)

// ReadUUID reads the device identifier and returns it as lowercase hex
func (c *Client) ReadUUID(ctx context.Context) (string, error) {
	req := frame.BuildReadFrame(c.opts.Source, c.opts.Target, frame.FuncReadUUID, 0, UUIDRegisters)
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return "", err
	}
	data, err := resp.ReadData()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

// SyncTime writes t as unix seconds to the device clock
func (c *Client) SyncTime(ctx context.Context, t time.Time) error {
	secs := t.Unix()
	if secs < 0 || secs > 0xFFFFFFFF {
		return bmserr.Value("time %s does not fit 32-bit epoch seconds", t.Format(time.RFC3339))
	}
	regs := registers.SplitU32(uint32(secs))
	return c.WriteRegisters(ctx, TimeRegister, regs[:])
}

// ConfigureMeterMAC writes a six byte MAC to the meter at meterAddr.
// A zero meterAddr selects frame.AddressMeter.
func (c *Client) ConfigureMeterMAC(ctx context.Context, meterAddr byte, mac string) error {
	b, err := ParseMAC(mac)
	if err != nil {
		return err
	}
	if meterAddr == 0 {
		meterAddr = frame.AddressMeter
	}
	regs := []uint16{
		registers.JoinBytes(b[0], b[1]),
		registers.JoinBytes(b[2], b[3]),
		registers.JoinBytes(b[4], b[5]),
	}
	return c.writeTo(ctx, meterAddr, MeterMACStart, regs)
}

// ParseMAC accepts AA:BB:CC:DD:EE:FF or AA-BB-CC-DD-EE-FF
func ParseMAC(s string) ([meterMACLength]byte, error) {
	var out [meterMACLength]byte
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ':' || r == '-'
	})
	if len(parts) != meterMACLength {
		return out, bmserr.Value("mac must be 6 bytes like AA:BB:CC:DD:EE:FF, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, bmserr.Value("mac byte %q: %v", p, err)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// FormatMAC renders six bytes as AA:BB:CC:DD:EE:FF. All-0xFF and all-zero
// addresses render as the empty string.
func FormatMAC(b []byte) string {
	if len(b) < meterMACLength {
		return ""
	}
	b = b[:meterMACLength]
	blank, unset := true, true
	for _, x := range b {
		blank = blank && x == 0xFF
		unset = unset && x == 0x00
	}
	if blank || unset {
		return ""
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}
