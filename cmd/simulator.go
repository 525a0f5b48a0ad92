// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/bmsctl/pkg/bmsclient"
	"github.com/Thermoquad/bmsctl/pkg/bmssim"
	"github.com/Thermoquad/bmsctl/pkg/frame"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// simStatus is the live status the simulated pack reports
func simStatus() bmsclient.Status {
	return bmsclient.Status{
		Voltage:           53.12,
		Current:           -4.2,
		SOC:               76,
		SOH:               98,
		RemainingCapacity: 76.4,
		FullCapacity:      100.5,
		CycleCount:        143,
		ChargeMOS:         true,
		DischargeMOS:      true,
		Balance:           0x0009,
		Cells: []float64{
			3.318, 3.321, 3.320, 3.319, 3.322, 3.317, 3.320, 3.321,
			3.319, 3.320, 3.318, 3.323, 3.321, 3.320, 3.319, 3.322,
		},
		Temperatures: []float64{24.5, 25.1, 23.8, 26.0},
		MAC:          "C8:47:8C:10:20:30",
	}
}

// newSimulator builds a BMS and a meter seeded to match configs/params.example.yaml
func newSimulator() (*bmssim.Bus, error) {
	bms := bmssim.New(frame.AddressBMS)
	bms.Logger = logger.With().Str("sim", "bms").Logger()
	bms.UUID = []byte{
		0x42, 0x4d, 0x53, 0x2d, 0x53, 0x49, 0x4d, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x20, 0x25, 0x01, 0x01,
	}
	bms.Protected = []bmssim.Range{{First: bmsclient.StatusHeader, Last: 0x01FF}}

	start, regs := simStatus().Encode()
	if err := bms.File.SetWindow(start, regs); err != nil {
		return nil, err
	}

	seed := map[uint16]uint16{
		0x1000: 3650,
		0x1001: 3400,
		0x1002: 2800,
		0x1003: 3000,
		0x1004: 0,
		0x1005: 5840,
		0x1006: 3400,
		0x1007: registers.JoinBytes(30, 1),
		0x1010: 1000,
		0x1011: 1500,
		0x1012: registers.JoinBytes(200, 10),
		0x1020: registers.JoinBytes(55+40, 0+40),
		0x1021: registers.JoinBytes(60+40, 40-20),
		0x1030: 0,
		0x1031: 10000,
		0x1032: registers.JoinBytes(20, 30),
	}
	for addr, v := range seed {
		bms.File.Set(addr, v)
	}
	if err := bms.File.SetWindow(0x1200, registers.TextToRegisters("bmsctl-sim", 16)); err != nil {
		return nil, err
	}
	if err := bms.File.SetWindow(0x1208, registers.TextToRegisters("123456", 8)); err != nil {
		return nil, err
	}

	meter := bmssim.New(frame.AddressMeter)
	meter.Logger = logger.With().Str("sim", "meter").Logger()

	return bmssim.NewBus(bms, meter), nil
}
