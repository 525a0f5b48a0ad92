// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"encoding/binary"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// Parse validates markers and checksum of a complete frame and classifies it.
//
// Integrity failures (markers, checksum, truncation, a payload length that
// disagrees with the length its kind implies) wrap bmserr.ErrIntegrity.
// The returned Payload and Raw alias b.
func Parse(b []byte) (Frame, error) {
	if len(b) < Overhead {
		return Frame{}, bmserr.Integrity("frame too short: %d bytes (min %d)", len(b), Overhead)
	}
	if b[0] != StartByte1 || b[1] != StartByte2 {
		return Frame{}, bmserr.Integrity("bad start marker 0x%02X%02X", b[0], b[1])
	}
	if b[len(b)-1] != TrailerByte {
		return Frame{}, bmserr.Integrity("bad trailer 0x%02X", b[len(b)-1])
	}

	body := b[2 : len(b)-3]
	got := binary.LittleEndian.Uint16(b[len(b)-3 : len(b)-1])
	want := CalculateCRC(body)
	if got != want {
		return Frame{}, bmserr.Integrity("CRC mismatch: expected 0x%04X, got 0x%04X", want, got)
	}

	f := Frame{
		Target:   body[0],
		Source:   body[1],
		Function: body[2],
		Payload:  body[3:],
		CRC:      got,
		Raw:      b,
	}
	switch {
	case f.Function&ErrorBit != 0:
		f.Kind = KindError
	case f.Function == FuncWriteMultiple:
		f.Kind = KindWrite
	default:
		f.Kind = KindRead
	}
	if err := checkLength(f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// checkLength verifies the payload spans exactly the bytes its kind declares.
// Read and write frames are accepted in both the request and the response
// layout, since a collector sees traffic in both directions.
func checkLength(f Frame) error {
	n := len(f.Payload)
	switch f.Kind {
	case KindError:
		if n != 1 {
			return bmserr.Integrity("error response payload is %d bytes, want 1", n)
		}
	case KindWrite:
		if n == 4 {
			return nil
		}
		if n < 5 || int(f.Payload[4]) != n-5 {
			return bmserr.Integrity("write frame payload of %d bytes matches neither request nor response layout", n)
		}
	default:
		if n == 4 {
			return nil
		}
		if n < 1 || int(f.Payload[0]) != n-1 {
			return bmserr.Integrity("read frame payload of %d bytes matches neither request nor response layout", n)
		}
	}
	return nil
}

// SplitRegistersBE groups payload bytes pairwise, most-significant byte first.
func SplitRegistersBE(payload []byte) ([]uint16, error) {
	if len(payload)%2 != 0 {
		return nil, bmserr.Protocol("register data has odd length %d", len(payload))
	}
	regs := make([]uint16, len(payload)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(payload[2*i:])
	}
	return regs, nil
}
