// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package registers maps typed device values onto 16-bit registers.
//
// A View is an addressed window of registers returned by a ranged read; File
// is an ordered address map used by the simulator and by batch writes. The
// numeric and text codecs implement sentinel handling, scaling and the
// partial-byte merge used by u8 values sharing one register.
package registers

import (
	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// View is a contiguous window of registers starting at Start
type View struct {
	Start uint16
	Regs  []uint16
}

// NewView creates a view over regs beginning at address start
func NewView(start uint16, regs []uint16) View {
	return View{Start: start, Regs: regs}
}

// End returns the address one past the last register in the view
func (v View) End() int {
	return int(v.Start) + len(v.Regs)
}

// Contains reports whether n registers from address fall inside the view
func (v View) Contains(address uint16, n int) bool {
	idx := int(address) - int(v.Start)
	return idx >= 0 && n >= 0 && idx+n <= len(v.Regs)
}

func (v View) index(address uint16, n int) (int, error) {
	if !v.Contains(address, n) {
		return 0, bmserr.Value("register 0x%04X (+%d) outside view 0x%04X..0x%04X",
			address, n, v.Start, v.End())
	}
	return int(address) - int(v.Start), nil
}

// U16 returns the register at address
func (v View) U16(address uint16) (uint16, error) {
	i, err := v.index(address, 1)
	if err != nil {
		return 0, err
	}
	return v.Regs[i], nil
}

// U32 combines two registers, high register first
func (v View) U32(address uint16) (uint32, error) {
	i, err := v.index(address, 2)
	if err != nil {
		return 0, err
	}
	return uint32(v.Regs[i])<<16 | uint32(v.Regs[i+1]), nil
}

// I32 is U32 reinterpreted as two's complement
func (v View) I32(address uint16) (int32, error) {
	u, err := v.U32(address)
	return int32(u), err
}

// HighByte returns the most significant byte of the register at address
func (v View) HighByte(address uint16) (byte, error) {
	r, err := v.U16(address)
	return byte(r >> 8), err
}

// LowByte returns the least significant byte of the register at address
func (v View) LowByte(address uint16) (byte, error) {
	r, err := v.U16(address)
	return byte(r), err
}

// Byte returns the selected byte of the register at address
func (v View) Byte(address uint16, sel ByteSel) (byte, error) {
	if sel == ByteHigh {
		return v.HighByte(address)
	}
	return v.LowByte(address)
}

// Bytes returns n bytes starting at address, each register most significant byte first
func (v View) Bytes(address uint16, n int) ([]byte, error) {
	regs := (n + 1) / 2
	i, err := v.index(address, regs)
	if err != nil {
		return nil, err
	}
	out := make([]byte, regs*2)
	for k := 0; k < regs; k++ {
		r := v.Regs[i+k]
		out[2*k] = byte(r >> 8)
		out[2*k+1] = byte(r)
	}
	return out[:n], nil
}
