// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frame implements the BMS binary frame codec.
//
// A frame is laid out as
//
//	7F 55 | target | source | function | payload... | crc-lo crc-hi | FD
//
// The checksum is CRC-16/MODBUS over target..payload, sent low byte first.
// Responses echo the request function code; a device-reported failure sets the
// high bit of the function code and carries a one byte exception code.
//
// The package also provides the Collector, which reassembles frames from a
// boundary-less byte stream that may split, merge or corrupt frames.
package frame

// Framing bytes
const (
	StartByte1  = 0x7F
	StartByte2  = 0x55
	TrailerByte = 0xFD
)

// Frame size limits
const (
	// MinFrameLen is the shortest byte run worth scanning for a frame.
	MinFrameLen = 6

	// Overhead is start(2) + target + source + function + crc(2) + trailer.
	Overhead = 8

	// MaxRegistersPerFrame is the largest register count whose byte count
	// still fits the one byte length field of a read response or write request.
	MaxRegistersPerFrame = 127

	// DefaultMaxRegisters is the per-frame register cap used for chunking.
	DefaultMaxRegisters = 120
)

// Function codes
const (
	FuncReadHolding   = 0x03
	FuncWriteMultiple = 0x10
	FuncReadUUID      = 0x11

	// ErrorBit is set on the echoed function code of an error response.
	ErrorBit = 0x80
)

// Well-known bus addresses
const (
	AddressHost  = 0xF0
	AddressBMS   = 0x01
	AddressMeter = 0xFC
)

// Exception codes carried by error responses
const (
	ExceptionIllegalFunction = 0x01
	ExceptionIllegalAddress  = 0x02
	ExceptionIllegalValue    = 0x03
	ExceptionDeviceFailure   = 0x04
	ExceptionBusy            = 0x06
)
