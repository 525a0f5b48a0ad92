// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"encoding/binary"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// Encode creates a complete wire-formatted frame around an arbitrary payload.
func Encode(target, source, function byte, payload []byte) []byte {
	out := make([]byte, 0, Overhead+len(payload))
	out = append(out, StartByte1, StartByte2, target, source, function)
	out = append(out, payload...)

	// CRC covers target..payload and is sent low byte first
	crc := CalculateCRC(out[2:])
	out = append(out, byte(crc), byte(crc>>8), TrailerByte)
	return out
}

// BuildReadFrame emits a request for quantity contiguous registers.
func BuildReadFrame(source, target, function byte, start, quantity uint16) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], start)
	binary.BigEndian.PutUint16(payload[2:4], quantity)
	return Encode(target, source, function, payload)
}

// BuildWriteRequest emits a request writing values to contiguous registers.
func BuildWriteRequest(source, target, function byte, start uint16, values []uint16) ([]byte, error) {
	if len(values) == 0 {
		return nil, bmserr.Value("write request without values")
	}
	if len(values) > MaxRegistersPerFrame {
		return nil, bmserr.Value("write request of %d registers exceeds %d per frame", len(values), MaxRegistersPerFrame)
	}
	payload := make([]byte, 5, 5+2*len(values))
	binary.BigEndian.PutUint16(payload[0:2], start)
	binary.BigEndian.PutUint16(payload[2:4], uint16(len(values)))
	payload[4] = byte(2 * len(values))
	payload = append(payload, JoinRegistersBE(values)...)
	return Encode(target, source, function, payload), nil
}

// EncodeReadResponse emits the device answer to a read request.
// Target and source are given from the responder's point of view.
func EncodeReadResponse(target, source, function byte, data []byte) ([]byte, error) {
	if len(data) > 0xFF {
		return nil, bmserr.Value("read response of %d bytes exceeds byte count field", len(data))
	}
	payload := make([]byte, 0, 1+len(data))
	payload = append(payload, byte(len(data)))
	payload = append(payload, data...)
	return Encode(target, source, function, payload), nil
}

// EncodeWriteResponse emits the device acknowledgement of a write request.
func EncodeWriteResponse(target, source, function byte, start, quantity uint16) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], start)
	binary.BigEndian.PutUint16(payload[2:4], quantity)
	return Encode(target, source, function, payload)
}

// EncodeErrorResponse emits a device-reported error for the given request function.
func EncodeErrorResponse(target, source, function, code byte) []byte {
	return Encode(target, source, function|ErrorBit, []byte{code})
}

// JoinRegistersBE serialises registers most-significant byte first.
func JoinRegistersBE(values []uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(out[2*i:], v)
	}
	return out
}
