// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmsclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// Status block layout. The header register carries the cell count in its
// high byte and the temperature sensor count in its low byte; every section
// after the cell voltages is located from those counts.
const (
	StatusHeader     = 0x0100
	StatusCellStart  = 0x0141
	StatusExtraRegs  = 48 // three 16-register blocks between temperatures and MAC
	StatusMACRegs    = 5
	statusPackVolts  = 0x0101
	statusCurrent    = 0x0102
	statusSOC        = 0x0103
	statusSOH        = 0x0104
	statusRemaining  = 0x0105 // u32
	statusFull       = 0x0107 // u32
	statusCycles     = 0x0109
	statusAlarms     = 0x010A // u32
	statusProtection = 0x010C // u32
	statusMOS        = 0x010E // high: charge, low: discharge
	statusBalance    = 0x010F // u32, one bit per cell
)

// Status is the decoded live status block
type Status struct {
	CellCount int
	TempCount int

	Voltage           float64 // V
	Current           float64 // A, negative while discharging
	SOC               int     // %
	SOH               int     // %
	RemainingCapacity float64 // Ah
	FullCapacity      float64 // Ah
	CycleCount        int

	Alarms       uint32
	Protections  uint32
	ChargeMOS    bool
	DischargeMOS bool
	Balance      uint32

	Cells        []float64 // V
	Temperatures []float64 // °C
	Extended     []uint16
	MAC          string
}

// statusSpan returns the first register after the status block for S cells
// and N temperature sensors
func statusSpan(cells, temps int) int {
	return StatusCellStart + cells + temps + StatusExtraRegs + StatusMACRegs
}

// ReadStatus reads the header register, then the whole status block in one
// ranged read.
func (c *Client) ReadStatus(ctx context.Context) (Status, error) {
	head, err := c.ReadRegisters(ctx, StatusHeader, 1)
	if err != nil {
		return Status{}, err
	}
	cells, temps := int(head[0]>>8), int(head[0]&0xFF)
	view, err := c.ReadView(ctx, StatusHeader, statusSpan(cells, temps)-StatusHeader)
	if err != nil {
		return Status{}, err
	}
	return ParseStatus(view)
}

// ParseStatus decodes a view starting at the status header
func ParseStatus(v registers.View) (Status, error) {
	head, err := v.U16(StatusHeader)
	if err != nil {
		return Status{}, err
	}
	s := Status{CellCount: int(head >> 8), TempCount: int(head & 0xFF)}
	if !v.Contains(StatusHeader, statusSpan(s.CellCount, s.TempCount)-StatusHeader) {
		return Status{}, bmserr.Protocol("status block for %d cells and %d sensors is truncated", s.CellCount, s.TempCount)
	}

	u16 := func(addr uint16) uint16 {
		r, _ := v.U16(addr)
		return r
	}
	u32 := func(addr uint16) uint32 {
		r, _ := v.U32(addr)
		return r
	}

	s.Voltage = float64(u16(statusPackVolts)) / 100
	s.Current = float64(int16(u16(statusCurrent))) / 100
	s.SOC = int(u16(statusSOC))
	s.SOH = int(u16(statusSOH))
	s.RemainingCapacity = float64(u32(statusRemaining)) / 100
	s.FullCapacity = float64(u32(statusFull)) / 100
	s.CycleCount = int(u16(statusCycles))
	s.Alarms = u32(statusAlarms)
	s.Protections = u32(statusProtection)
	mos := u16(statusMOS)
	s.ChargeMOS = mos>>8 != 0
	s.DischargeMOS = mos&0xFF != 0
	s.Balance = u32(statusBalance)

	addr := uint16(StatusCellStart)
	s.Cells = make([]float64, s.CellCount)
	for i := range s.Cells {
		s.Cells[i] = float64(u16(addr)) / 1000
		addr++
	}
	s.Temperatures = make([]float64, s.TempCount)
	for i := range s.Temperatures {
		s.Temperatures[i] = float64(int16(u16(addr))) / 10
		addr++
	}
	s.Extended = make([]uint16, StatusExtraRegs)
	for i := range s.Extended {
		s.Extended[i] = u16(addr)
		addr++
	}
	mac, err := v.Bytes(addr, 6)
	if err != nil {
		return Status{}, err
	}
	s.MAC = FormatMAC(mac)
	return s, nil
}

// Encode renders s as the register block ParseStatus reads, starting at the
// status header.
func (s Status) Encode() (uint16, []uint16) {
	regs := make([]uint16, statusSpan(len(s.Cells), len(s.Temperatures))-StatusHeader)
	set := func(addr uint16, v uint16) { regs[addr-StatusHeader] = v }
	set32 := func(addr uint16, v uint32) {
		p := registers.SplitU32(v)
		set(addr, p[0])
		set(addr+1, p[1])
	}

	set(StatusHeader, uint16(len(s.Cells))<<8|uint16(len(s.Temperatures)&0xFF))
	set(statusPackVolts, uint16(roundTo(s.Voltage*100)))
	set(statusCurrent, uint16(int16(roundTo(s.Current*100))))
	set(statusSOC, uint16(s.SOC))
	set(statusSOH, uint16(s.SOH))
	set32(statusRemaining, uint32(roundTo(s.RemainingCapacity*100)))
	set32(statusFull, uint32(roundTo(s.FullCapacity*100)))
	set(statusCycles, uint16(s.CycleCount))
	set32(statusAlarms, s.Alarms)
	set32(statusProtection, s.Protections)
	var mos uint16
	if s.ChargeMOS {
		mos |= 0x0100
	}
	if s.DischargeMOS {
		mos |= 0x0001
	}
	set(statusMOS, mos)
	set32(statusBalance, s.Balance)

	addr := uint16(StatusCellStart)
	for _, c := range s.Cells {
		set(addr, uint16(roundTo(c*1000)))
		addr++
	}
	for _, t := range s.Temperatures {
		set(addr, uint16(int16(roundTo(t*10))))
		addr++
	}
	for i := 0; i < StatusExtraRegs; i++ {
		if i < len(s.Extended) {
			set(addr, s.Extended[i])
		}
		addr++
	}
	if mac, err := ParseMAC(s.MAC); err == nil {
		set(addr, registers.JoinBytes(mac[0], mac[1]))
		set(addr+1, registers.JoinBytes(mac[2], mac[3]))
		set(addr+2, registers.JoinBytes(mac[4], mac[5]))
	}
	return StatusHeader, regs
}

func roundTo(v float64) int64 {
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}

// Fields flattens the status into dotted paths used by derived parameters,
// such as soc, cells.0 or temps.1.
func (s Status) Fields() map[string]any {
	f := map[string]any{
		"cellCount":         s.CellCount,
		"tempCount":         s.TempCount,
		"voltage":           s.Voltage,
		"current":           s.Current,
		"power":             roundPower(s.Voltage * s.Current),
		"soc":               s.SOC,
		"soh":               s.SOH,
		"remainingCapacity": s.RemainingCapacity,
		"fullCapacity":      s.FullCapacity,
		"cycleCount":        s.CycleCount,
		"alarms":            s.Alarms,
		"protections":       s.Protections,
		"chargeMos":         s.ChargeMOS,
		"dischargeMos":      s.DischargeMOS,
		"balance":           s.Balance,
		"mac":               s.MAC,
	}
	for i, c := range s.Cells {
		f["cells."+strconv.Itoa(i)] = c
	}
	for i, t := range s.Temperatures {
		f["temps."+strconv.Itoa(i)] = t
	}
	if len(s.Cells) > 0 {
		lo, hi := s.Cells[0], s.Cells[0]
		for _, c := range s.Cells[1:] {
			lo, hi = min(lo, c), max(hi, c)
		}
		f["minCell"] = lo
		f["maxCell"] = hi
		f["cellDelta"] = float64(roundTo((hi-lo)*1000)) / 1000
	}
	return f
}

func roundPower(w float64) float64 {
	return float64(roundTo(w*100)) / 100
}

// Field resolves a dotted path against Fields
func (s Status) Field(path string) (any, error) {
	v, ok := s.Fields()[strings.TrimSpace(path)]
	if !ok {
		return nil, bmserr.Value("status has no field %q", path)
	}
	return v, nil
}

// String renders a short summary line
func (s Status) String() string {
	return fmt.Sprintf("%.2fV %.2fA SOC %d%% %d cells %d sensors", s.Voltage, s.Current, s.SOC, s.CellCount, s.TempCount)
}
